package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grovetools/cncctl/cli"
	"github.com/grovetools/cncctl/internal/session"
	"github.com/grovetools/cncctl/logging"
	"github.com/grovetools/cncctl/pkg/machine"
	"github.com/spf13/cobra"
)

// statusReport is the --json output of status.
type statusReport struct {
	Host      string             `json:"host"`
	Mode      machine.Mode       `json:"mode"`
	Status    string             `json:"status"`
	Reason    string             `json:"reason,omitempty"`
	Paused    bool               `json:"paused"`
	Units     string             `json:"units"`
	File      string             `json:"file,omitempty"`
	Line      int                `json:"line"`
	Progress  float64            `json:"progress"`
	Remaining float64            `json:"remaining_seconds"`
	Positions map[string]float64 `json:"positions,omitempty"`
	Upgrade   string             `json:"upgrade_available,omitempty"`
	Modified  bool               `json:"config_modified"`
}

func newStatusCmd() *cobra.Command {
	var planWait time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the machine status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, true, func(ctx context.Context, s *session.Session) error {
				// Progress and remaining time need the selected file's plan.
				waitCtx, cancel := context.WithTimeout(ctx, planWait)
				err := s.WaitToolpath(waitCtx)
				cancel()
				if err != nil {
					cli.GetLogger(cmd).WithError(err).Debug("Reporting status without a toolpath")
				}

				report := buildStatus(s)
				if cli.GetOptions(cmd).JSONOutput {
					return printJSON(cmd, report)
				}
				printStatus(logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()), report)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&planWait, "plan-wait", 3*time.Second, "How long to wait for the selected file's plan")
	return cmd
}

func buildStatus(s *session.Session) statusReport {
	st := s.Status()
	snap := machine.FromState(s.Store().Snapshot())

	report := statusReport{
		Host:      s.API().Controller().Address(),
		Mode:      st.Mode,
		Status:    st.CoarseStatus,
		Reason:    st.Reason,
		Paused:    st.Paused,
		Units:     "metric",
		File:      snap.Selected,
		Line:      int(snap.Line),
		Progress:  st.Progress,
		Remaining: st.Remaining.Seconds(),
		Positions: make(map[string]float64),
		Modified:  s.Store().Modified(),
	}
	if snap.Imperial {
		report.Units = "imperial"
	}
	for _, axis := range snap.EnabledAxes() {
		if p, ok := snap.Position(axis); ok {
			report.Positions[axis] = p
		}
	}
	if s.UpgradeAvailable() {
		report.Upgrade = s.LatestVersion()
	}
	return report
}

func printStatus(p *logging.PrettyLogger, r statusReport) {
	p.Field("Controller", r.Host)
	p.Mode("Mode", string(r.Mode))
	if r.Reason != "" {
		p.Field("Reason", r.Reason)
	}
	p.Field("Units", r.Units)

	if r.File != "" {
		p.Field("File", r.File)
		p.Field("Line", r.Line)
		if r.Progress > 0 {
			p.Field("Progress", fmt.Sprintf("%.1f%%", r.Progress*100))
			p.Field("Remaining", (time.Duration(r.Remaining) * time.Second).String())
		}
	}

	if len(r.Positions) > 0 {
		var parts []string
		for _, a := range machine.Axes {
			if v, ok := r.Positions[string(a)]; ok {
				parts = append(parts, fmt.Sprintf("%s=%.3f", strings.ToUpper(string(a)), v))
			}
		}
		p.Field("Position", strings.Join(parts, " "))
	}

	if r.Modified {
		p.Warn("Device configuration has unsaved changes")
	}
	if r.Upgrade != "" {
		p.Info(fmt.Sprintf("Firmware %s is available (cncctl firmware upgrade)", r.Upgrade))
	}
}
