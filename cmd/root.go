// Package cmd implements the cncctl command tree.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grovetools/cncctl/cli"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/pkg/profiling"
	"github.com/grovetools/cncctl/version"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the cncctl command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand("cncctl", "Live client for a networked CNC controller")
	root.Long = `Mirror a CNC controller's state over its websocket channel and drive it
through its command API: start and pause jobs, home and jog axes, send MDI
commands, manage files, configuration and firmware.

Examples:
  # Show what the machine is doing
  cncctl status

  # Live dashboard
  cncctl watch

  # Jog X at half power against another controller
  cncctl --host shop-cnc.local jog x 0.5`

	info := version.GetInfo()
	cli.SetVersionTemplate(root, cli.VersionInfo{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
		BuildArch: info.Platform,
	})

	root.AddCommand(
		newStatusCmd(),
		newWatchCmd(),
		newStartCmd(),
		newStopCmd(),
		newStepCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newEstopCmd(),
		newHomeCmd(),
		newZeroCmd(),
		newPositionCmd(),
		newJogCmd(),
		newOverrideCmd(),
		newUnitsCmd(),
		newCurrentCmd(),
		newMDICmd(),
		newFileCmd(),
		newToolpathCmd(),
		newConfigCmd(),
		newFirmwareCmd(),
		newMessagesCmd(),
		newLogsCmd(),
		cli.NewVersionCommand("cncctl", cli.VersionInfo{
			Version:   info.Version,
			Commit:    info.Commit,
			BuildDate: info.BuildDate,
			BuildArch: info.Platform,
		}),
	)

	profiler := profiling.NewCobraProfiler()
	profiler.AddFlags(root)
	root.PersistentPreRunE = profiler.PreRun
	root.PersistentPostRun = profiler.PostRun

	cli.ApplyStyledHelpRecursive(root)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		verbose, _ := root.PersistentFlags().GetBool("verbose")
		cli.NewErrorHandler(verbose).Handle(err)
		return 1
	}
	return 0
}

// liveFunc runs against a connected session.
type liveFunc func(ctx context.Context, s *session.Session) error

// withSession connects to the controller, waits for the device
// configuration (and the first state push when needState is set) and runs
// fn. The session stops when fn returns.
func withSession(cmd *cobra.Command, needState bool, fn liveFunc) error {
	opts := cli.GetOptions(cmd)
	logger := cli.GetLogger(cmd)

	phase := profiling.Start("load config")
	cfg, err := cli.LoadConfig(opts)
	phase.Stop()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	s := session.New(session.Options{Config: cfg, Logger: logger})
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, cfg.Controller.RequestTimeout)
	defer waitCancel()
	phase = profiling.Start("connect")
	err = s.WaitReady(waitCtx)
	phase.Stop()
	if err != nil {
		return err
	}
	if needState {
		phase = profiling.Start("first state")
		err = s.WaitState(waitCtx)
		phase.Stop()
		if err != nil {
			return err
		}
	}

	defer profiling.Start(cmd.Name()).Stop()
	return fn(ctx, s)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
