package toolpath

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted answers each request for a file with the next scripted response;
// the last one repeats.
type scripted struct {
	mu        sync.Mutex
	responses map[string][]tree.Map
	errs      map[string]error
	requests  map[string]int
}

func newScripted() *scripted {
	return &scripted{
		responses: map[string][]tree.Map{},
		errs:      map[string]error{},
		requests:  map[string]int{},
	}
}

func (s *scripted) Plan(_ context.Context, filename string) (tree.Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.requests[filename]
	s.requests[filename]++
	if err := s.errs[filename]; err != nil {
		return nil, err
	}
	list := s.responses[filename]
	if n >= len(list) {
		n = len(list) - 1
	}
	return list[n], nil
}

func (s *scripted) count(filename string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[filename]
}

type recorder struct {
	deltas []tree.Map
}

func (r *recorder) Apply(delta tree.Map) error {
	r.deltas = append(r.deltas, delta)
	return nil
}

type loop struct {
	work chan func()
}

func newLoop() *loop { return &loop{work: make(chan func(), 16)} }

func (l *loop) post(fn func()) { l.work <- fn }

// step runs the next posted response.
func (l *loop) step(t *testing.T) {
	t.Helper()
	select {
	case fn := <-l.work:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no response posted")
	}
}

func (l *loop) idle(t *testing.T) {
	t.Helper()
	select {
	case <-l.work:
		t.Fatal("unexpected response posted")
	case <-time.After(50 * time.Millisecond):
	}
}

func progress(p float64) tree.Map { return tree.Map{"progress": tree.S(p)} }

func complete(t float64) tree.Map {
	m, _ := tree.MapFromAny(map[string]interface{}{
		"time": t,
		"bounds": map[string]interface{}{
			"min": map[string]interface{}{"x": -1, "y": -2, "z": -3, "a": 0, "b": 0, "c": 0},
			"max": map[string]interface{}{"x": 10, "y": 20, "z": 0, "a": 0, "b": 0, "c": 0},
		},
	})
	return m
}

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func TestProgressTriggersExactlyOneRerequest(t *testing.T) {
	r := newScripted()
	r.responses["part.gcode"] = []tree.Map{progress(0.5), complete(100)}
	pub := &recorder{}
	l := newLoop()
	f := New(r, pub, l.post, Options{}, quietLogger())

	ctx := context.Background()
	f.Load(ctx, "part.gcode")

	l.step(t)
	assert.Equal(t, 0.5, f.Progress())
	assert.Nil(t, f.Plan())

	l.step(t)
	assert.Equal(t, 2, r.count("part.gcode"))
	assert.Equal(t, 1.0, f.Progress())
	require.NotNil(t, f.Plan())
	assert.Equal(t, "part.gcode", f.Plan().Filename)
	assert.Equal(t, 100.0, f.Time())

	require.Len(t, pub.deltas, 1)
	assert.Equal(t, tree.S(-1), pub.deltas[0]["path_min_x"])
	assert.Equal(t, tree.S(20), pub.deltas[0]["path_max_y"])
	assert.Len(t, pub.deltas[0], 12)

	l.idle(t)
	assert.Equal(t, 2, r.count("part.gcode"))
}

func TestStaleResponseDiscarded(t *testing.T) {
	r := newScripted()
	r.responses["part.gcode"] = []tree.Map{progress(0.5)}
	r.responses["other.gcode"] = []tree.Map{complete(10)}
	pub := &recorder{}
	l := newLoop()
	f := New(r, pub, l.post, Options{}, quietLogger())

	ctx := context.Background()
	f.Load(ctx, "part.gcode")
	f.Load(ctx, "other.gcode")

	// Both responses arrive; the part.gcode one must not re-request.
	l.step(t)
	l.step(t)
	l.idle(t)

	assert.Equal(t, 1, r.count("part.gcode"))
	assert.Equal(t, 1, r.count("other.gcode"))
	require.NotNil(t, f.Plan())
	assert.Equal(t, "other.gcode", f.Plan().Filename)
	assert.Len(t, pub.deltas, 1)
}

func TestLoadSameFileIsNoop(t *testing.T) {
	r := newScripted()
	r.responses["part.gcode"] = []tree.Map{complete(10)}
	l := newLoop()
	f := New(r, &recorder{}, l.post, Options{}, quietLogger())
	ctx := context.Background()

	f.Load(ctx, "part.gcode")
	l.step(t)
	f.Load(ctx, "part.gcode")
	l.idle(t)
	assert.Equal(t, 1, r.count("part.gcode"))

	f.Invalidate()
	f.Load(ctx, "part.gcode")
	l.step(t)
	assert.Equal(t, 2, r.count("part.gcode"))
}

func TestEmptyFilenameClears(t *testing.T) {
	r := newScripted()
	r.responses["part.gcode"] = []tree.Map{complete(10)}
	l := newLoop()
	f := New(r, &recorder{}, l.post, Options{}, quietLogger())
	ctx := context.Background()

	changes := 0
	f.OnChange(func() { changes++ })

	// The first empty load still clears: nothing was requested before.
	f.Load(ctx, "")
	assert.Equal(t, 1, changes)
	l.idle(t)

	f.Load(ctx, "part.gcode")
	l.step(t)
	require.NotNil(t, f.Plan())

	f.Load(ctx, "")
	assert.Nil(t, f.Plan())
	assert.Equal(t, 0.0, f.Progress())
	assert.Equal(t, "", f.Filename())
}

func TestErrorEndsChain(t *testing.T) {
	r := newScripted()
	r.errs["part.gcode"] = fmt.Errorf("boom")
	l := newLoop()
	f := New(r, &recorder{}, l.post, Options{}, quietLogger())

	f.Load(context.Background(), "part.gcode")
	l.step(t)
	l.idle(t)
	assert.Equal(t, 1, r.count("part.gcode"))
	assert.Nil(t, f.Plan())
	assert.EqualError(t, f.Err(), "boom")
}

func TestMalformedPlanEndsChainWithError(t *testing.T) {
	r := newScripted()
	r.responses["part.gcode"] = []tree.Map{{"time": tree.S("soon")}}
	l := newLoop()
	f := New(r, &recorder{}, l.post, Options{}, quietLogger())
	changes := 0
	f.OnChange(func() { changes++ })

	f.Load(context.Background(), "part.gcode")
	l.step(t)
	l.idle(t)

	assert.Nil(t, f.Plan())
	require.Error(t, f.Err())
	assert.True(t, errors.Is(f.Err(), errors.ErrCodeProtocolViolation))
	assert.Equal(t, 2, changes, "cleared on load, then failed")

	f.Load(context.Background(), "")
	assert.NoError(t, f.Err(), "a new selection starts clean")
}

func TestMaxAttempts(t *testing.T) {
	r := newScripted()
	r.responses["part.gcode"] = []tree.Map{progress(0.1)}
	l := newLoop()
	f := New(r, &recorder{}, l.post, Options{MaxAttempts: 2}, quietLogger())

	f.Load(context.Background(), "part.gcode")
	l.step(t)
	l.step(t)
	l.step(t)
	l.idle(t)
	assert.Equal(t, 3, r.count("part.gcode"), "initial request plus two re-requests")
	assert.True(t, errors.Is(f.Err(), errors.ErrCodeTimeout))
}

func TestBackoff(t *testing.T) {
	opts := Options{RetryInitial: 100 * time.Millisecond, RetryMax: time.Second}
	assert.Equal(t, 100*time.Millisecond, backoff(opts, 1))
	assert.Equal(t, 200*time.Millisecond, backoff(opts, 2))
	assert.Equal(t, 800*time.Millisecond, backoff(opts, 4))
	assert.Equal(t, time.Second, backoff(opts, 5))
	assert.Equal(t, time.Second, backoff(opts, 500))
	assert.Equal(t, time.Duration(0), backoff(Options{}, 3))
	assert.Equal(t, time.Minute, backoff(Options{RetryInitial: time.Second}, 500))
}
