package machine

import (
	"testing"
	"time"

	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(t *testing.T, v map[string]interface{}) Snapshot {
	t.Helper()
	m, ok := tree.MapFromAny(v)
	require.True(t, ok)
	return FromState(m)
}

func TestDeriveMode(t *testing.T) {
	tests := []struct {
		name  string
		state map[string]interface{}
		want  Mode
	}{
		{"jogging overrides ready", map[string]interface{}{"cycle": "jogging", "xx": "READY"}, ModeJogging},
		{"estop beats jogging", map[string]interface{}{"cycle": "jogging", "xx": "ESTOPPED"}, ModeEstopped},
		{"homing overrides running", map[string]interface{}{"cycle": "homing", "xx": "RUNNING"}, ModeHoming},
		{"running cycle keeps status", map[string]interface{}{"cycle": "running", "xx": "HOLDING"}, ModeHolding},
		{"idle ready", map[string]interface{}{"cycle": "idle", "xx": "READY"}, ModeReady},
		{"no cycle", map[string]interface{}{"xx": "STOPPING"}, ModeStopping},
		{"empty", map[string]interface{}{}, ModeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveMode(snap(t, tt.state)))
		})
	}
}

func TestPausedRequiresDeliberatePause(t *testing.T) {
	now := time.Now()

	st := Derive(snap(t, map[string]interface{}{"xx": "HOLDING", "pr": "Program pause"}), 0, now)
	assert.True(t, st.Paused)
	assert.Equal(t, "Program pause", st.Reason)
	assert.True(t, st.HighlightReason)

	st = Derive(snap(t, map[string]interface{}{"xx": "HOLDING", "pr": "Feed hold error"}), 0, now)
	assert.False(t, st.Paused)
	assert.True(t, st.Holding)

	st = Derive(snap(t, map[string]interface{}{"xx": "ESTOPPED", "er": "Motor fault", "pr": "User pause"}), 0, now)
	assert.False(t, st.Paused)
	assert.Equal(t, "Motor fault", st.Reason)

	st = Derive(snap(t, map[string]interface{}{"xx": "RUNNING", "pr": "User pause"}), 0, now)
	assert.Equal(t, "", st.Reason)
	assert.False(t, st.HighlightReason)
}

func TestProgressAndRemaining(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	st := Derive(snap(t, map[string]interface{}{"xx": "RUNNING", "plan_time": 40}), 100, now)
	assert.InDelta(t, 0.4, st.Progress, 1e-9)
	assert.Equal(t, 60*time.Second, st.Remaining)
	assert.Equal(t, now.Add(60*time.Second), st.ETA)
	assert.True(t, st.Running)

	st = Derive(snap(t, map[string]interface{}{"xx": "READY", "plan_time": 40}), 100, now)
	assert.Equal(t, 0.0, st.Progress)
	assert.Equal(t, time.Duration(0), st.Remaining)
	assert.True(t, st.ETA.IsZero())

	st = Derive(snap(t, map[string]interface{}{"xx": "HOLDING", "plan_time": 150}), 100, now)
	assert.Equal(t, 1.0, st.Progress, "progress is clamped")
	assert.Equal(t, time.Duration(0), st.Remaining, "remaining is clamped")
	assert.True(t, st.ETA.IsZero(), "eta only while running")

	st = Derive(snap(t, map[string]interface{}{"xx": "RUNNING", "plan_time": 40}), 0, now)
	assert.Equal(t, 0.0, st.Progress, "no toolpath time")
	assert.Equal(t, time.Duration(0), st.Remaining, "no toolpath time")
	assert.True(t, st.ETA.IsZero(), "no eta without a plan")
}

func TestPredicates(t *testing.T) {
	now := time.Now()

	idle := Derive(snap(t, map[string]interface{}{"xx": "READY", "cycle": "idle"}), 0, now)
	assert.True(t, idle.Idle)
	assert.True(t, idle.Ready)
	assert.True(t, idle.CanStartMDI)
	assert.True(t, idle.CanSetAxisPosition)

	mdi := Derive(snap(t, map[string]interface{}{"xx": "RUNNING", "cycle": "mdi"}), 0, now)
	assert.True(t, mdi.CanStartMDI)
	assert.False(t, mdi.CanSetAxisPosition)

	homing := Derive(snap(t, map[string]interface{}{"xx": "READY", "cycle": "homing"}), 0, now)
	assert.True(t, homing.Running)
	assert.Equal(t, "READY", homing.CoarseStatus)
}

func TestFromStateToleratesBadTypes(t *testing.T) {
	s := snap(t, map[string]interface{}{
		"xx":            "READY",
		"plan_time":     map[string]interface{}{"oops": 1},
		"x_enabled":     true,
		"z_enabled":     true,
		"xpl":           0.5,
		"y_homing_mode": "manual",
	})
	assert.Equal(t, "READY", s.Status)
	assert.Equal(t, 0.0, s.PlanTime)
	assert.Equal(t, []string{"x", "z"}, s.EnabledAxes())
	assert.Equal(t, HomingManual, s.HomingMode("Y"))
	pl, ok := s.PowerLimit("x")
	assert.True(t, ok)
	assert.Equal(t, 0.5, pl)
}
