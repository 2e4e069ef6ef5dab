// Package profiling records how long the phases of a command take.
package profiling

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Stopper ends a timed phase.
type Stopper interface {
	Stop()
}

type phase struct {
	name     string
	start    time.Time
	duration time.Duration
	done     bool
}

// Profiler collects phase timings. The zero value is disabled.
type Profiler struct {
	mu      sync.Mutex
	enabled bool
	started time.Time
	phases  []*phase
}

var defaultProfiler = &Profiler{}

// Enable turns on the global profiler.
func Enable() { defaultProfiler.Enable() }

// Start begins a phase on the global profiler.
func Start(name string) Stopper { return defaultProfiler.Start(name) }

// Summarize writes the global profiler's timings.
func Summarize(w io.Writer) { defaultProfiler.Summarize(w) }

// Enable starts recording. Calling it again keeps the earlier phases.
func (p *Profiler) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return
	}
	p.enabled = true
	p.started = time.Now()
}

// Start begins a named phase. It must be stopped, typically via defer.
func (p *Profiler) Start(name string) Stopper {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return noopStopper{}
	}
	ph := &phase{name: name, start: time.Now()}
	p.phases = append(p.phases, ph)
	return &phaseStopper{p: p, ph: ph}
}

type phaseStopper struct {
	p  *Profiler
	ph *phase
}

func (s *phaseStopper) Stop() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.ph.done {
		return
	}
	s.ph.duration = time.Since(s.ph.start)
	s.ph.done = true
}

// Summarize prints each phase with its offset from Enable and its share of
// the total. Phases still running are marked as such.
func (p *Profiler) Summarize(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}

	total := time.Since(p.started)
	phases := append([]*phase(nil), p.phases...)
	sort.SliceStable(phases, func(i, j int) bool { return phases[i].start.Before(phases[j].start) })

	fmt.Fprintln(w, "\n--- Timing ---")
	for _, ph := range phases {
		offset := ph.start.Sub(p.started).Round(time.Millisecond)
		if !ph.done {
			fmt.Fprintf(w, "+%-8v %s (running)\n", offset, ph.name)
			continue
		}
		share := 0.0
		if total > 0 {
			share = float64(ph.duration) / float64(total) * 100
		}
		fmt.Fprintf(w, "+%-8v %s %v (%.1f%%)\n", offset, ph.name, ph.duration.Round(100*time.Microsecond), share)
	}
	fmt.Fprintf(w, "total %v\n", total.Round(time.Millisecond))
}

type noopStopper struct{}

func (noopStopper) Stop() {}
