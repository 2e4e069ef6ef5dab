package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/grovetools/cncctl/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newGate(timeout time.Duration) (*Gate, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGate(timeout)
	g.now = c.now
	return g, c
}

func TestBlockedErrorsShownAtMostOnce(t *testing.T) {
	g, c := newGate(0)

	e := state.LogEntry{Level: "error", Source: "motor", Msg: "Driver fault"}
	require.True(t, g.Allow(e))
	require.True(t, g.BlockLast())

	shown := 0
	for i := 0; i < 2; i++ {
		if g.Allow(e) {
			shown++
		}
		c.advance(500 * time.Millisecond)
	}
	assert.LessOrEqual(t, shown, 1)
	assert.Equal(t, 0, shown)

	// Other classes are not affected.
	assert.True(t, g.Allow(state.LogEntry{Level: "error", Source: "planner", Msg: "Soft limit"}))

	c.advance(DefaultErrorTimeout)
	assert.True(t, g.Allow(e), "block expires")
	assert.False(t, g.Blocked("motor"))
}

func TestRepeatWindow(t *testing.T) {
	g, c := newGate(time.Minute)

	prev := c.t.Add(-500 * time.Millisecond)
	repeated := state.LogEntry{Source: "spindle", Msg: "Overload", Repeat: 2, Ts: float64(prev.UnixMilli())}
	assert.False(t, g.Allow(repeated))

	c.advance(time.Second)
	assert.True(t, g.Allow(repeated))

	first := state.LogEntry{Source: "spindle", Msg: "Overload", Repeat: 1, Ts: float64(c.t.UnixMilli())}
	assert.True(t, g.Allow(first))
}

func TestSetTimeout(t *testing.T) {
	g, c := newGate(time.Minute)
	g.Block("motor")
	c.advance(10 * time.Second)
	assert.True(t, g.Blocked("motor"))

	g.SetTimeout(5 * time.Second)
	assert.False(t, g.Blocked("motor"))
	assert.False(t, NewGate(0).BlockLast())
}

func TestClass(t *testing.T) {
	assert.Equal(t, "motor", Class(state.LogEntry{Source: "motor", Msg: "x"}))
	assert.Equal(t, "x", Class(state.LogEntry{Msg: "x"}))
}

type recorder struct{ verbs []string }

func (r *recorder) Put(_ context.Context, verb string, _ interface{}) error {
	r.verbs = append(r.verbs, verb)
	return nil
}

func TestMessages(t *testing.T) {
	api := &recorder{}
	m := NewMessages(api)
	ctx := context.Background()

	m.Add("Insert tool 1")
	m.Add("Insert tool 2")
	assert.Equal(t, []interface{}{"Insert tool 2", "Insert tool 1"}, m.List())
	assert.True(t, m.Showing())

	require.NoError(t, m.Close(ctx, ActionContinue))
	assert.Empty(t, m.List())
	assert.False(t, m.Showing())

	m.Add("Check clamps")
	require.NoError(t, m.Close(ctx, ActionStop))
	m.Add("Done")
	require.NoError(t, m.Close(ctx, "ok"))

	assert.Equal(t, []string{"unpause", "stop"}, api.verbs)
}
