package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/logging"
	"github.com/spf13/cobra"
)

func newZeroCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "zero [axis]",
		Short: "Set the position of one axis, or all enabled axes, to 0",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			axis := ""
			if len(args) == 1 {
				axis = args[0]
			}
			return commandRunner("zero", "Zeroed", func(ctx context.Context, s *session.Session) error {
				return s.Controller().Zero(ctx, axis)
			})(cmd, args)
		},
	}
}

func newPositionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position <axis> <value>",
		Short: "Set an axis' current position (machine must be idle)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parseFloatArg("position", args[1])
			if err != nil {
				return err
			}
			return commandRunner("position", "Position set", func(ctx context.Context, s *session.Session) error {
				return s.Controller().SetPosition(ctx, args[0], pos)
			})(cmd, args)
		},
	}
}

func newJogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jog <axis> <power>",
		Short: "Jog an axis at a signed power fraction (-1..1, 0 stops)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			power, err := parseFloatArg("power", args[1])
			if err != nil {
				return err
			}
			if power < -1 || power > 1 {
				return errors.New(errors.ErrCodeInvalidInput, "jog power must be between -1 and 1").
					WithDetail("power", power)
			}
			return commandRunner("jog", "Jog sent", func(ctx context.Context, s *session.Session) error {
				return s.Controller().Jog(ctx, args[0], power)
			})(cmd, args)
		},
	}
}

func newOverrideCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "override <feed|speed> <ratio>",
		Short:     "Set the feed or spindle speed override",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"feed", "speed"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ratio, err := parseFloatArg("ratio", args[1])
			if err != nil {
				return err
			}
			switch args[0] {
			case "feed":
				return commandRunner("override feed", "Feed override set", func(ctx context.Context, s *session.Session) error {
					return s.Controller().OverrideFeed(ctx, ratio)
				})(cmd, args)
			case "speed":
				return commandRunner("override speed", "Speed override set", func(ctx context.Context, s *session.Session) error {
					return s.Controller().OverrideSpeed(ctx, ratio)
				})(cmd, args)
			}
			return errors.New(errors.ErrCodeInvalidInput, "override must be 'feed' or 'speed'").
				WithDetail("override", args[0])
		},
	}
}

func newUnitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "units <metric|imperial>",
		Short: "Switch the machine between metric and imperial units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var metric bool
			switch strings.ToLower(args[0]) {
			case "metric", "mm":
				metric = true
			case "imperial", "in", "inch":
			default:
				return errors.New(errors.ErrCodeInvalidInput, "units must be 'metric' or 'imperial'").
					WithDetail("units", args[0])
			}

			return withSession(cmd, true, func(ctx context.Context, s *session.Session) error {
				sent, err := s.Controller().SetUnits(metric)
				if err != nil {
					return err
				}
				p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
				if !sent {
					p.Info("Machine already uses " + strings.ToLower(args[0]) + " units")
					return nil
				}
				p.Success("Units switched")
				return nil
			})
		},
	}
}

func newCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current <axis> <value>",
		Short: "Set an axis' motor current limit (0..32)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseFloatArg("current", args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, true, func(ctx context.Context, s *session.Session) error {
				sent, err := s.Controller().SetCurrent(args[0], value)
				if err != nil {
					return err
				}
				p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
				if !sent {
					p.Info(fmt.Sprintf("Current limit of %s unchanged", strings.ToUpper(args[0])))
					return nil
				}
				p.Success("Current limit set")
				return nil
			})
		},
	}
}
