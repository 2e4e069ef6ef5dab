package machine

import (
	"math"
	"strings"
	"time"
)

// Mode is the operating mode derived from the coarse status and cycle tags.
type Mode string

const (
	ModeNone     Mode = ""
	ModeEstopped Mode = "ESTOPPED"
	ModeHoming   Mode = "HOMING"
	ModeJogging  Mode = "JOGGING"
	ModeRunning  Mode = "RUNNING"
	ModeStopping Mode = "STOPPING"
	ModeHolding  Mode = "HOLDING"
	ModeReady    Mode = "READY"
)

// Cycle tags.
const (
	CycleIdle    = "idle"
	CycleMDI     = "mdi"
	CycleJogging = "jogging"
	CycleHoming  = "homing"
)

// DeriveMode applies estop > cycle > coarse status: a jogging or homing
// cycle overrides the coarse status unless the machine is estopped.
func DeriveMode(s Snapshot) Mode {
	if s.Cycle != "" && Mode(s.Status) != ModeEstopped &&
		(s.Cycle == CycleJogging || s.Cycle == CycleHoming) {
		return Mode(strings.ToUpper(s.Cycle))
	}
	return Mode(s.Status)
}

// Status is everything the client derives from one snapshot.
type Status struct {
	Mode         Mode
	CoarseStatus string

	Running  bool
	Stopping bool
	Holding  bool
	Ready    bool
	Idle     bool
	Paused   bool

	CanStartMDI        bool
	CanSetAxisPosition bool

	Reason          string
	HighlightReason bool

	// Progress is the completed fraction of the selected job, 0..1.
	Progress float64
	// Remaining is the estimated time left in the job.
	Remaining time.Duration
	// ETA is set only while running.
	ETA time.Time
}

// Derive computes the status of a snapshot. toolpathTime is the total plan
// time in seconds of the loaded toolpath, 0 when none is loaded.
func Derive(s Snapshot, toolpathTime float64, now time.Time) Status {
	mode := DeriveMode(s)

	st := Status{
		Mode:         mode,
		CoarseStatus: s.Status,
		Running:      mode == ModeRunning || mode == ModeHoming,
		Stopping:     mode == ModeStopping,
		Holding:      mode == ModeHolding,
		Ready:        mode == ModeReady,
		Idle:         s.Cycle == CycleIdle,
	}
	st.Paused = st.Holding && (s.PauseReason == ReasonUserPause || s.PauseReason == ReasonProgramPause)
	st.CanStartMDI = st.Idle || s.Cycle == CycleMDI
	st.CanSetAxisPosition = st.Idle

	switch mode {
	case ModeEstopped:
		st.Reason = s.ErrorReason
	case ModeHolding:
		st.Reason = s.PauseReason
	}
	st.HighlightReason = st.Reason != ""

	remaining := RemainingTime(mode, toolpathTime, s.PlanTime)
	st.Remaining = seconds(remaining)
	st.Progress = Progress(mode, toolpathTime, s.PlanTime)
	if mode == ModeRunning && toolpathTime > 0 {
		st.ETA = now.Add(st.Remaining)
	}

	return st
}

// RemainingTime returns seconds left in the job, 0 unless a job is in flight
// and its plan time is known. It never goes negative.
func RemainingTime(mode Mode, toolpathTime, planTime float64) float64 {
	if toolpathTime <= 0 {
		return 0
	}
	switch mode {
	case ModeStopping, ModeRunning, ModeHolding:
		return math.Max(0, toolpathTime-planTime)
	}
	return 0
}

// Progress returns the completed fraction of the job, clamped to 1.
func Progress(mode Mode, toolpathTime, planTime float64) float64 {
	if toolpathTime == 0 || mode == ModeReady {
		return 0
	}
	return math.Min(1, planTime/toolpathTime)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
