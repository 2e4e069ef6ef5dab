package cmd

import (
	"context"
	"strconv"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/logging"
	"github.com/spf13/cobra"
)

// commandRunner returns a RunE issuing one controller command.
func commandRunner(op, done string, fn func(ctx context.Context, s *session.Session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, true, func(ctx context.Context, s *session.Session) error {
			err := s.Command(ctx, op, func(ctx context.Context) error { return fn(ctx, s) })
			if err != nil {
				return err
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success(done)
			return nil
		})
	}
}

func parseFloatArg(name, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidInput, "invalid "+name+": "+value).
			WithDetail(name, value)
	}
	return v, nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the selected file, or pause/resume the running job",
		Long: `Acts like the controller's start/pause button: a running job is paused,
a held or stopping job is resumed, otherwise the selected file starts.`,
		Args: cobra.NoArgs,
		RunE: commandRunner("start", "Start/pause sent", func(ctx context.Context, s *session.Session) error {
			return s.Controller().StartPause(ctx)
		}),
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running job",
		Args:  cobra.NoArgs,
		RunE: commandRunner("stop", "Stopped", func(ctx context.Context, s *session.Session) error {
			return s.Controller().Stop(ctx)
		}),
	}
}

func newStepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "step",
		Short: "Execute one block of the selected program",
		Args:  cobra.NoArgs,
		RunE: commandRunner("step", "Stepped", func(ctx context.Context, s *session.Session) error {
			return s.Controller().Step(ctx)
		}),
	}
}

func newPauseCmd() *cobra.Command {
	var optional bool
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the running job",
		Args:  cobra.NoArgs,
		RunE: commandRunner("pause", "Paused", func(ctx context.Context, s *session.Session) error {
			return s.Controller().Pause(ctx, optional)
		}),
	}
	cmd.Flags().BoolVar(&optional, "optional", false, "Pause at the next optional stop (M1) only")
	return cmd
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "resume",
		Aliases: []string{"unpause"},
		Short:   "Resume a paused job",
		Args:    cobra.NoArgs,
		RunE: commandRunner("unpause", "Resumed", func(ctx context.Context, s *session.Session) error {
			return s.Controller().Unpause(ctx)
		}),
	}
}

func newEstopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estop",
		Short: "Toggle the emergency stop",
		Long:  `Triggers the emergency stop, or clears it when the machine is already estopped.`,
		Args:  cobra.NoArgs,
		RunE: commandRunner("estop", "Emergency stop toggled", func(ctx context.Context, s *session.Session) error {
			return s.Controller().Estop(ctx)
		}),
	}
}

func newHomeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "home [axis]",
		Short: "Home all axes or one axis",
		Long: `Homes every axis, or the named one. Axes in manual homing mode must be
given a home position with 'home set'.

Examples:
  cncctl home
  cncctl home z
  cncctl home set a 0`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			axis := ""
			if len(args) == 1 {
				axis = args[0]
			}
			return commandRunner("home", "Homing started", func(ctx context.Context, s *session.Session) error {
				return s.Controller().Home(ctx, axis)
			})(cmd, args)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <axis> <position>",
		Short: "Mark an axis homed at a position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parseFloatArg("position", args[1])
			if err != nil {
				return err
			}
			return commandRunner("home set", "Home position set", func(ctx context.Context, s *session.Session) error {
				return s.Controller().SetHome(ctx, args[0], pos)
			})(cmd, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <axis>",
		Short: "Clear an axis' homed flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commandRunner("home clear", "Homed flag cleared", func(ctx context.Context, s *session.Session) error {
				return s.Controller().Unhome(ctx, args[0])
			})(cmd, args)
		},
	})
	return cmd
}
