package cmd

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/cncctl/cli"
	"github.com/grovetools/cncctl/config"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/pkg/alerts"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/grovetools/cncctl/tui/dashboard"
	"github.com/spf13/cobra"
)

// dashboardBackend exposes a session to the dashboard.
type dashboardBackend struct {
	*session.Session
}

func (b dashboardBackend) State() tree.Map { return b.Store().Snapshot() }

func (b dashboardBackend) Host() string { return b.API().Controller().Address() }

func (b dashboardBackend) Act(ctx context.Context, action string) error {
	c := b.Controller()
	switch action {
	case "start":
		return b.Command(ctx, action, c.StartPause)
	case "stop":
		return b.Command(ctx, action, c.Stop)
	case "estop":
		return b.Command(ctx, action, c.Estop)
	case "continue":
		return b.CloseMessages(ctx, alerts.ActionContinue)
	}
	return fmt.Errorf("unknown action %q", action)
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open a live dashboard of the machine",
		Long: `Shows the connection, mode, job progress and positions of the machine
and a feed of controller messages, updating as deltas arrive.

Edits to the project config file are applied while the dashboard runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, false, func(ctx context.Context, s *session.Session) error {
				if path := s.Config().Path; path != "" {
					w, err := config.NewWatcher(path, 0, cli.GetLogger(cmd), s.ApplyConfig)
					if err != nil {
						return err
					}
					defer w.Close()
					go w.Start(ctx)
				}

				events := s.Subscribe()
				defer s.Unsubscribe(events)

				model := dashboard.New(ctx, dashboardBackend{s}, events)
				_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
				if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
					return nil
				}
				return err
			})
		},
	}
}
