package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grovetools/cncctl/cli"
	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/logging"
	"github.com/grovetools/cncctl/pkg/api"
	"github.com/grovetools/cncctl/pkg/machine"
	"github.com/grovetools/cncctl/pkg/toolpath"
	"github.com/grovetools/cncctl/state"
	"github.com/spf13/cobra"
)

func newToolpathCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "toolpath [file]",
		Short: "Show the computed plan of a file",
		Long: `Requests the toolpath plan of a file, waiting while the controller
computes it, and prints its run time and bounds. Without a file the last
uploaded one is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			logger := cli.GetLogger(cmd)
			cfg, err := cli.LoadConfig(opts)
			if err != nil {
				return err
			}

			file := ""
			if len(args) == 1 {
				file = args[0]
			} else if file, err = state.GetLocalString(lastUploadKey); err != nil {
				return err
			}
			if file == "" {
				return errors.New(errors.ErrCodeInvalidInput, "no file given and nothing uploaded yet")
			}

			ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
			defer cancel()

			changed := make(chan struct{}, 1)
			fetcher := toolpath.New(api.New(cfg.Controller, logger), nil, nil, toolpath.Options{
				RetryInitial: cfg.Toolpath.RetryInitial,
				RetryMax:     cfg.Toolpath.RetryMax,
				MaxAttempts:  cfg.Toolpath.MaxAttempts,
			}, logger.WithField("file", file))
			fetcher.OnChange(func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			fetcher.Load(ctx, file)

			p := logging.NewPrettyLogger().WithWriter(cmd.ErrOrStderr())
			for fetcher.Plan() == nil {
				select {
				case <-changed:
					if err := fetcher.Err(); err != nil {
						return err
					}
					if progress := fetcher.Progress(); progress > 0 && progress < 1 && !opts.JSONOutput {
						p.Info(fmt.Sprintf("Computing plan: %.0f%%", progress*100))
					}
				case <-ctx.Done():
					return errors.Timeout("toolpath "+file, timeout)
				}
			}

			plan := fetcher.Plan()
			if opts.JSONOutput {
				return printJSON(cmd, plan)
			}

			out := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			out.Field("File", plan.Filename)
			out.Field("Time", (time.Duration(plan.Time * float64(time.Second))).Round(time.Second).String())
			for _, a := range machine.Axes {
				axis := string(a)
				min, okMin := plan.Bounds.Min[axis]
				max, okMax := plan.Bounds.Max[axis]
				if okMin && okMax {
					out.Field(strings.ToUpper(axis), fmt.Sprintf("%.3f .. %.3f", min, max))
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "How long to wait for the plan")
	return cmd
}
