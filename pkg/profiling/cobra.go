package profiling

import (
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

// CobraProfiler adds --timing and --cpu-profile to a command tree.
type CobraProfiler struct {
	cpuProfileFile *os.File
	cpuProfilePath string
	timing         bool
}

// NewCobraProfiler creates a new profiler for Cobra integration.
func NewCobraProfiler() *CobraProfiler {
	return &CobraProfiler{}
}

// AddFlags adds the profiling flags to the given Cobra command.
func (p *CobraProfiler) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&p.cpuProfilePath, "cpu-profile", "", "Write CPU profile to file")
	cmd.PersistentFlags().BoolVar(&p.timing, "timing", false, "Print how long connecting and each phase took")
}

// PreRun is intended to be used as a Cobra PersistentPreRunE hook.
func (p *CobraProfiler) PreRun(cmd *cobra.Command, args []string) error {
	if p.timing {
		Enable()
	}

	if p.cpuProfilePath != "" {
		f, err := os.Create(p.cpuProfilePath)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		p.cpuProfileFile = f
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			p.cpuProfileFile = nil
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
	}
	return nil
}

// PostRun is intended to be used as a Cobra PersistentPostRun hook.
func (p *CobraProfiler) PostRun(cmd *cobra.Command, args []string) {
	if p.cpuProfileFile != nil {
		pprof.StopCPUProfile()
		p.cpuProfileFile.Close()
		fmt.Fprintf(cmd.ErrOrStderr(), "CPU profile written to %s\n", p.cpuProfilePath)
	}

	if p.timing {
		Summarize(cmd.ErrOrStderr())
	}
}
