package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grovetools/cncctl/cli"
	"github.com/grovetools/cncctl/config"
	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/logging"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write the device configuration",
	}
	cmd.AddCommand(newConfigPullCmd(), newConfigPushCmd(), newConfigSetCmd(), newConfigSchemaCmd(), newConfigShowCmd())
	return cmd
}

func newConfigPullCmd() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the device configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, false, func(ctx context.Context, s *session.Session) error {
				data, err := encodeDeviceConfig(s.Store().ConfigSnapshot(), format)
				if err != nil {
					return err
				}
				if output == "" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0644); err != nil {
					return err
				}
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Wrote " + output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newConfigPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <file>",
		Short: "Upload a device configuration (JSON with comments, or YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			device, err := decodeDeviceConfig(data, filepath.Ext(args[0]))
			if err != nil {
				return err
			}

			return withSession(cmd, false, func(ctx context.Context, s *session.Session) error {
				err := s.Command(ctx, "config push", func(ctx context.Context) error {
					return s.API().SaveConfig(ctx, device)
				})
				if err != nil {
					return err
				}
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Configuration uploaded")
				return nil
			})
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Change one device configuration value and save",
		Long: `Sets a dotted configuration path and saves the configuration. Values
are parsed as JSON when possible, so numbers and booleans keep their type.

Examples:
  cncctl config set motors.0.max-velocity 10
  cncctl config set admin.auto-check-upgrade false`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := parseValue(args[1])
			return withSession(cmd, false, func(ctx context.Context, s *session.Session) error {
				if err := s.SetConfig(ctx, args[0], value); err != nil {
					return err
				}
				if err := s.Save(ctx); err != nil {
					return err
				}
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success(fmt.Sprintf("Set %s", args[0]))
				return nil
			})
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of cncctl.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective client configuration",
		Long: `Prints cncctl's own configuration after merging defaults, the global
file, the project file, overrides and the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cli.GetOptions(cmd))
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, cfg)
			}
			if cfg.Path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# Source: %s\n", cfg.Path)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func encodeDeviceConfig(m tree.Map, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json", "":
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(m.ToAny())
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "unknown format: "+format).WithDetail("format", format)
}

func decodeDeviceConfig(data []byte, ext string) (tree.Map, error) {
	var raw interface{}
	switch strings.ToLower(ext) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.ConfigInvalid(err.Error())
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return nil, errors.ConfigInvalid(err.Error())
		}
	}

	m, ok := tree.MapFromAny(raw)
	if !ok {
		return nil, errors.ConfigInvalid("device configuration must be an object")
	}
	return m, nil
}

// parseValue reads a command-line value as JSON, falling back to a string.
func parseValue(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
