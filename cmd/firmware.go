package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovetools/cncctl/cli"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/logging"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/grovetools/cncctl/util/pathutil"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newFirmwareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firmware",
		Short: "Check for and install controller firmware",
	}
	cmd.AddCommand(newFirmwareCheckCmd(), newFirmwareUpgradeCmd(), newFirmwareUploadCmd())
	return cmd
}

// firmwareReport is the --json output of firmware check.
type firmwareReport struct {
	Current   string `json:"current"`
	Latest    string `json:"latest"`
	Available bool   `json:"available"`
}

func newFirmwareCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare the installed firmware with the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, true, func(ctx context.Context, s *session.Session) error {
				latest, err := s.CheckUpgrade(ctx)
				if err != nil {
					return err
				}
				current, _ := tree.String(s.Store().ConfigSnapshot(), "version")
				report := firmwareReport{Current: current, Latest: latest, Available: s.UpgradeAvailable()}

				if cli.GetOptions(cmd).JSONOutput {
					return printJSON(cmd, report)
				}
				p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
				p.Field("Installed", report.Current)
				p.Field("Latest", report.Latest)
				if report.Available {
					p.Info("An upgrade is available. Run 'cncctl firmware upgrade'.")
				} else {
					p.Success("Firmware is up to date")
				}
				return nil
			})
		},
	}
}

func newFirmwareUpgradeCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Have the controller download and install the latest firmware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(cmd, password)
			if err != nil {
				return err
			}
			return withSession(cmd, false, func(ctx context.Context, s *session.Session) error {
				if err := s.Upgrade(ctx, pw); err != nil {
					return err
				}
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Upgrade started; the controller will restart")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Admin password (prompted when omitted on a terminal)")
	return cmd
}

func newFirmwareUploadCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "upload <package>",
		Short: "Install a firmware package from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := pathutil.Expand(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			pw, err := resolvePassword(cmd, password)
			if err != nil {
				return err
			}
			return withSession(cmd, false, func(ctx context.Context, s *session.Session) error {
				if err := s.UploadFirmware(ctx, filepath.Base(path), f, pw); err != nil {
					return err
				}
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Firmware uploaded; the controller will restart")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Admin password (prompted when omitted on a terminal)")
	return cmd
}

// resolvePassword returns the flag value, or prompts for it when stdin is a
// terminal. Without a terminal an empty password is sent.
func resolvePassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" || cmd.Flags().Changed("password") {
		return flag, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Admin password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
