package state

import (
	"testing"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *Store {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(logrus.NewEntry(logger))
}

func delta(t *testing.T, v map[string]interface{}) tree.Map {
	t.Helper()
	m, ok := tree.MapFromAny(v)
	require.True(t, ok)
	return m
}

func TestApplyMergesAndNotifiesOnce(t *testing.T) {
	s := newStore()

	calls := 0
	var seen string
	s.Subscribe(func() {
		calls++
		seen = s.GetString("xx")
	})

	require.NoError(t, s.Apply(delta(t, map[string]interface{}{"xx": "READY", "x": map[string]interface{}{"pos": 1}})))
	require.NoError(t, s.Apply(delta(t, map[string]interface{}{"x": map[string]interface{}{"vel": 2}})))

	assert.Equal(t, 2, calls)
	assert.Equal(t, "READY", seen, "subscribers observe the merged state")
	assert.Equal(t, 1.0, s.GetFloat("x.pos"))
	assert.Equal(t, 2.0, s.GetFloat("x.vel"))
}

func TestApplyRoutesSideChannels(t *testing.T) {
	s := newStore()

	var logs []LogEntry
	var messages []interface{}
	s.OnLog(func(e LogEntry) { logs = append(logs, e) })
	s.OnMessage(func(m interface{}) { messages = append(messages, m) })

	in := delta(t, map[string]interface{}{
		"log": map[string]interface{}{
			"level": "error", "source": "planner", "msg": "Soft limit", "repeat": 2, "ts": 1700000000000,
		},
		"message": "Change tool",
		"line":    12,
	})
	require.NoError(t, s.Apply(in))

	require.Len(t, logs, 1)
	assert.Equal(t, LogEntry{Level: "error", Source: "planner", Msg: "Soft limit", Repeat: 2, Ts: 1700000000000}, logs[0])
	assert.Equal(t, []interface{}{"Change tool"}, messages)

	_, hasLog := s.Get("log")
	_, hasMessage := s.Get("message")
	assert.False(t, hasLog)
	assert.False(t, hasMessage)
	assert.Equal(t, 12.0, s.GetFloat("line"))

	_, stillThere := in["log"]
	assert.True(t, stillThere, "caller's delta is left untouched")
}

func TestApplyRejectsTypeChange(t *testing.T) {
	s := newStore()
	require.NoError(t, s.Apply(delta(t, map[string]interface{}{"x": map[string]interface{}{"pos": 1}, "xx": "READY"})))

	calls := 0
	s.Subscribe(func() { calls++ })

	err := s.Apply(delta(t, map[string]interface{}{"x": 5, "xx": "RUNNING"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeProtocolViolation))
	assert.Equal(t, 0, calls)
	assert.Equal(t, "READY", s.GetString("xx"), "rejected deltas are not partially applied")

	require.NoError(t, s.Apply(delta(t, map[string]interface{}{"xx": nil})), "null is compatible with any kind")
}

func TestRejectedDeltaSkipsSideChannels(t *testing.T) {
	s := newStore()
	require.NoError(t, s.Apply(delta(t, map[string]interface{}{"x": map[string]interface{}{"pos": 1}})))

	var logs []LogEntry
	var messages []interface{}
	s.OnLog(func(e LogEntry) { logs = append(logs, e) })
	s.OnMessage(func(m interface{}) { messages = append(messages, m) })

	err := s.Apply(delta(t, map[string]interface{}{
		"x":       5,
		"log":     map[string]interface{}{"level": "error", "msg": "Motor fault"},
		"message": "Change tool",
	}))
	require.Error(t, err)
	assert.Empty(t, logs)
	assert.Empty(t, messages)

	require.NoError(t, s.Apply(delta(t, map[string]interface{}{
		"log":     map[string]interface{}{"level": "error", "msg": "Motor fault"},
		"message": "Change tool",
	})))
	require.Len(t, logs, 1)
	assert.Equal(t, "Motor fault", logs[0].Msg)
	assert.Equal(t, []interface{}{"Change tool"}, messages)
}

func TestReentrantApplyIsRejected(t *testing.T) {
	s := newStore()

	var inner error
	s.Subscribe(func() {
		inner = s.Apply(tree.Map{"again": tree.S(true)})
	})

	require.NoError(t, s.Apply(tree.Map{"xx": tree.S("READY")}))
	require.Error(t, inner)
	assert.True(t, errors.Is(inner, errors.ErrCodeInternal))
	_, ok := s.Get("again")
	assert.False(t, ok)

	// The guard is released after dispatch.
	assert.NoError(t, s.Apply(tree.Map{"again": tree.S(true)}))
}

func TestUnsubscribe(t *testing.T) {
	s := newStore()
	calls := 0
	unsubscribe := s.Subscribe(func() { calls++ })

	require.NoError(t, s.Set("selected", "part.gcode"))
	unsubscribe()
	require.NoError(t, s.Set("selected", "other.gcode"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "other.gcode", s.GetString("selected"))
}

func TestConfigLifecycle(t *testing.T) {
	s := newStore()
	configCalls := 0
	s.SubscribeConfig(func() { configCalls++ })

	require.NoError(t, s.LoadConfig(delta(t, map[string]interface{}{
		"version": "1.0.3",
		"motors":  []interface{}{map[string]interface{}{"axis": "X"}, map[string]interface{}{"axis": "Y"}},
		"admin":   map[string]interface{}{"auto-check-upgrade": true},
	})))
	assert.False(t, s.Modified())

	require.NoError(t, s.SetConfig("motors.1.axis", "A"))
	assert.True(t, s.Modified())
	v, ok := s.ConfigGet("motors.1.axis")
	require.True(t, ok)
	assert.Equal(t, tree.S("A"), v)

	// Replace-merge drops keys absent from the full config.
	require.NoError(t, s.LoadConfig(delta(t, map[string]interface{}{
		"version": "1.0.4",
		"motors":  []interface{}{map[string]interface{}{"axis": "X"}},
	})))
	assert.False(t, s.Modified())
	cfg := s.ConfigSnapshot()
	_, hasAdmin := cfg["admin"]
	assert.False(t, hasAdmin)
	assert.Len(t, cfg["motors"].(*tree.List).Items, 1)
	assert.Equal(t, 3, configCalls)

	require.NoError(t, s.SetConfig("version", "2.0.0"))
	s.MarkSaved()
	assert.False(t, s.Modified())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newStore()
	require.NoError(t, s.Apply(delta(t, map[string]interface{}{"x": map[string]interface{}{"pos": 1}})))

	snap := s.Snapshot()
	snap["x"].(tree.Map)["pos"] = tree.S(99)
	assert.Equal(t, 1.0, s.GetFloat("x.pos"))
}

func TestReset(t *testing.T) {
	s := newStore()
	require.NoError(t, s.Apply(delta(t, map[string]interface{}{"xx": "RUNNING", "line": 4})))

	s.Reset(tree.Map{"xx": tree.S("READY")})
	assert.Equal(t, "READY", s.GetString("xx"))
	_, ok := s.Get("line")
	assert.False(t, ok)
}
