package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/grovetools/cncctl/cli"
	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/logging"
	"github.com/grovetools/cncctl/state"
	"github.com/spf13/cobra"
)

const mdiHistoryKey = "mdi_history"

// maxMDIHistory bounds the persisted history.
const maxMDIHistory = 100

func newMDICmd() *cobra.Command {
	var (
		showHistory bool
		repeat      int
	)

	cmd := &cobra.Command{
		Use:   "mdi [gcode...]",
		Short: "Send a manual G-code command",
		Long: `Sends a G-code line to the controller. Commands are remembered in
.cncctl/state.yml; --history lists them and --repeat re-sends one.

Examples:
  cncctl mdi G0 X10 Y10
  cncctl mdi --history
  cncctl mdi --repeat 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := state.LoadLocal()
			if err != nil {
				return err
			}
			history := local.Strings(mdiHistoryKey)

			if showHistory {
				if cli.GetOptions(cmd).JSONOutput {
					return printJSON(cmd, history)
				}
				for i, line := range history {
					fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", i, line)
				}
				return nil
			}

			if len(args) == 0 && repeat < 0 {
				return errors.New(errors.ErrCodeInvalidInput, "nothing to send: give a G-code line or --repeat")
			}

			return withSession(cmd, true, func(ctx context.Context, s *session.Session) error {
				ctrl := s.Controller()
				ctrl.SetHistory(history)

				if repeat >= 0 {
					if !ctrl.LoadHistory(repeat) {
						return errors.New(errors.ErrCodeInvalidInput, "no history entry "+strconv.Itoa(repeat)).
							WithDetail("entries", len(history))
					}
				} else {
					ctrl.SetMDI(strings.Join(args, " "))
				}

				if !s.Status().CanStartMDI {
					return errors.New(errors.ErrCodeInvalidInput, "the machine is busy; MDI needs an idle machine")
				}
				line := ctrl.MDI()
				if err := ctrl.SubmitMDI(); err != nil {
					return err
				}

				updated := ctrl.History()
				if len(updated) > maxMDIHistory {
					updated = updated[:maxMDIHistory]
				}
				local.SetStrings(mdiHistoryKey, updated)
				if err := state.SaveLocal(local); err != nil {
					cli.GetLogger(cmd).WithError(err).Warn("Failed to save MDI history")
				}

				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Sent " + line)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showHistory, "history", false, "List previously sent commands, newest first")
	cmd.Flags().IntVar(&repeat, "repeat", -1, "Re-send the history entry at this index")
	return cmd
}
