package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// VersionInfo describes a build.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	BuildArch string `json:"buildArch"`
}

// SetVersionTemplate sets the --version output of a command.
func SetVersionTemplate(cmd *cobra.Command, info VersionInfo) {
	cmd.Version = info.Version
	cmd.SetVersionTemplate(fmt.Sprintf(`{{.Name}} {{.Version}}
  Commit:    %s
  Built:     %s
  Arch:      %s
`, info.Commit, info.BuildDate, info.BuildArch))
}

// NewVersionCommand creates the version command.
func NewVersionCommand(name string, info VersionInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: fmt.Sprintf("Print the version of %s", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "%s %s\n", name, info.Version)
			fmt.Fprintf(out, "  Commit:    %s\n", info.Commit)
			fmt.Fprintf(out, "  Built:     %s\n", info.BuildDate)
			fmt.Fprintf(out, "  Arch:      %s\n", info.BuildArch)
			return nil
		},
	}
}
