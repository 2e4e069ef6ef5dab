package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/grovetools/cncctl/cli"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/logging"
	"github.com/grovetools/cncctl/state"
	"github.com/grovetools/cncctl/util/pathutil"
	"github.com/spf13/cobra"
)

const lastUploadKey = "last_upload"

func newFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Manage G-code files on the controller",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a G-code file and select it",
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
			name := filepath.Base(path)

			return withSession(cmd, false, func(ctx context.Context, s *session.Session) error {
				if err := s.UploadFile(ctx, name, f); err != nil {
					return err
				}
				if err := state.SetLocal(lastUploadKey, name); err != nil {
					cli.GetLogger(cmd).WithError(err).Debug("Failed to remember upload")
				}
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Uploaded " + name)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a file from the controller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, false, func(ctx context.Context, s *session.Session) error {
				if err := s.DeleteFile(ctx, args[0]); err != nil {
					return err
				}
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Deleted " + args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete-all",
		Short: "Delete every file from the controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, false, func(ctx context.Context, s *session.Session) error {
				if err := s.DeleteAllFiles(ctx); err != nil {
					return err
				}
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Deleted all files")
				return nil
			})
		},
	})
	return cmd
}
