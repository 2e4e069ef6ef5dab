package cli

import (
	"os"

	"github.com/grovetools/cncctl/config"
	"github.com/grovetools/cncctl/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CommandOptions holds the flags every cncctl command accepts.
type CommandOptions struct {
	ConfigFile string
	Host       string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a command with the standard cncctl flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to cncctl.yml config file")
	cmd.PersistentFlags().StringP("host", "H", "", "Controller host, overriding the configuration")

	SetStyledHelp(cmd)
	return cmd
}

// GetLogger returns the CLI logger adjusted for the command's flags.
func GetLogger(cmd *cobra.Command) *logrus.Entry {
	entry := logging.NewLogger("cncctl")

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		entry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return entry
}

// GetOptions extracts the standard options from a command.
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	host, _ := cmd.Flags().GetString("host")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Host:       host,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// LoadConfig loads the configuration named by --config, or the one found
// from the working directory, and applies --host.
func LoadConfig(opts CommandOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.Load(opts.ConfigFile)
	} else {
		var cwd string
		cwd, err = os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg, err = config.LoadFrom(cwd)
	}
	if err != nil {
		return nil, err
	}

	if opts.Host != "" {
		cfg.Controller = cfg.Controller.WithHost(opts.Host)
	}
	return cfg, nil
}
