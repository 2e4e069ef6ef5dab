package cmd

import (
	"context"
	"fmt"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/logging"
	"github.com/grovetools/cncctl/pkg/alerts"
	"github.com/spf13/cobra"
)

func newMessagesCmd() *cobra.Command {
	var closeAction string

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Follow operator messages and controller errors",
		Long: `Prints operator messages (tool changes, program prompts) and controller
errors as they arrive, until interrupted. --close answers the pending
prompt instead: 'stop' stops the program, 'continue' resumes it and
'dismiss' only clears the list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch closeAction {
			case "", alerts.ActionStop, alerts.ActionContinue, "dismiss":
			default:
				return errors.New(errors.ErrCodeInvalidInput, "close action must be stop, continue or dismiss").
					WithDetail("action", closeAction)
			}

			return withSession(cmd, false, func(ctx context.Context, s *session.Session) error {
				p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())

				if closeAction != "" {
					if err := s.CloseMessages(ctx, closeAction); err != nil {
						return err
					}
					p.Success("Messages closed (" + closeAction + ")")
					return nil
				}

				events := s.Subscribe()
				defer s.Unsubscribe(events)

				for _, msg := range s.Messages().List() {
					p.Info(fmt.Sprint(msg))
				}
				for {
					select {
					case <-ctx.Done():
						return nil
					case e := <-events:
						switch e.Type {
						case session.EventMessage:
							p.Info(fmt.Sprint(e.Message))
						case session.EventAlert:
							p.Error(e.Log.Msg, nil)
						case session.EventConnection:
							p.Mode("Connection", string(e.Status))
						}
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&closeAction, "close", "", "Close pending messages: stop, continue, or dismiss")
	return cmd
}
