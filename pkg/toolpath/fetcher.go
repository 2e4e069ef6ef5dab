package toolpath

import (
	"context"
	"sync"
	"time"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/pkg/machine"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// Retriever fetches the computed plan for a file. While the controller is
// still computing it answers {"progress": p}.
type Retriever interface {
	Plan(ctx context.Context, filename string) (tree.Map, error)
}

// Publisher receives the plan bounds as a state delta.
type Publisher interface {
	Apply(delta tree.Map) error
}

// Bounds is the axis-aligned extent of a plan.
type Bounds struct {
	Min map[string]float64 `mapstructure:"min" json:"min"`
	Max map[string]float64 `mapstructure:"max" json:"max"`
}

// Plan is a completed toolpath plan.
type Plan struct {
	Filename string                 `mapstructure:"filename" json:"filename"`
	Time     float64                `mapstructure:"time" json:"time"`
	Bounds   Bounds                 `mapstructure:"bounds" json:"bounds"`
	Extra    map[string]interface{} `mapstructure:",remain" json:"-"`
}

// Options controls re-requests while a plan is being computed.
type Options struct {
	// RetryInitial is the delay before the first re-request; 0 re-requests
	// immediately.
	RetryInitial time.Duration
	// RetryMax caps the doubling delay; 0 caps it at one minute.
	RetryMax time.Duration
	// MaxAttempts bounds re-requests per file; 0 is unbounded.
	MaxAttempts int
}

// Fetcher loads the plan of the selected file, re-requesting while the
// controller reports progress and discarding answers for files that are no
// longer selected.
//
// Load, Invalidate and response handling run on the caller's event loop:
// responses are handed back through post.
type Fetcher struct {
	retriever Retriever
	publisher Publisher
	post      func(func())
	logger    *logrus.Entry

	mu       sync.Mutex
	opts     Options
	lastFile *string
	gen      uint64
	attempts int
	progress float64
	plan     *Plan
	err      error
	onChange func()
}

// New creates a Fetcher. post schedules a function on the event loop that
// owns the Fetcher; nil runs responses on the requesting goroutine.
func New(retriever Retriever, publisher Publisher, post func(func()), opts Options, logger *logrus.Entry) *Fetcher {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Fetcher{
		retriever: retriever,
		publisher: publisher,
		post:      post,
		opts:      opts,
		logger:    logger,
	}
}

// OnChange registers a callback run after progress or the plan changes.
func (f *Fetcher) OnChange(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

// SetOptions replaces the retry options for subsequent re-requests.
func (f *Fetcher) SetOptions(opts Options) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = opts
}

// Load requests the plan for filename unless it is already the tracked file.
// An empty filename clears the plan without a request.
func (f *Fetcher) Load(ctx context.Context, filename string) {
	f.mu.Lock()
	if f.lastFile != nil && *f.lastFile == filename {
		f.mu.Unlock()
		return
	}

	name := filename
	f.lastFile = &name
	f.gen++
	gen := f.gen
	f.attempts = 0
	f.progress = 0
	f.plan = nil
	f.err = nil
	f.mu.Unlock()

	f.changed()

	if filename == "" {
		return
	}
	f.logger.WithField("file", filename).Debug("Loading toolpath")
	f.request(ctx, filename, gen, 0)
}

// Invalidate forgets the tracked file so the next Load re-requests it, e.g.
// after the same name was uploaded again.
func (f *Fetcher) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFile = nil
	f.gen++
}

// Filename returns the tracked file, "" if none.
func (f *Fetcher) Filename() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastFile == nil {
		return ""
	}
	return *f.lastFile
}

// Progress returns the plan computation progress, 1 once loaded.
func (f *Fetcher) Progress() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress
}

// Err returns the error that ended the request chain of the tracked file,
// nil while it is loading or once loaded.
func (f *Fetcher) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Plan returns the loaded plan, nil while computing or with no file.
func (f *Fetcher) Plan() *Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.plan == nil {
		return nil
	}
	p := *f.plan
	return &p
}

// Time returns the loaded plan's total time in seconds, 0 if none.
func (f *Fetcher) Time() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.plan == nil {
		return 0
	}
	return f.plan.Time
}

func (f *Fetcher) request(ctx context.Context, filename string, gen uint64, delay time.Duration) {
	go func() {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}

		resp, err := f.retriever.Plan(ctx, filename)
		f.post(func() { f.handle(ctx, filename, gen, resp, err) })
	}()
}

func (f *Fetcher) handle(ctx context.Context, filename string, gen uint64, resp tree.Map, err error) {
	logger := f.logger.WithField("file", filename)

	f.mu.Lock()
	if f.lastFile == nil || *f.lastFile != filename || f.gen != gen {
		f.mu.Unlock()
		logger.Debug("Discarding stale toolpath response")
		return
	}

	if err != nil {
		f.err = err
		f.mu.Unlock()
		logger.WithError(err).Error("Failed to retrieve toolpath")
		f.changed()
		return
	}

	if p, ok := resp["progress"]; ok {
		if v, isNum := tree.ToAny(p).(float64); isNum {
			f.progress = v
		}
		f.attempts++
		attempts, opts := f.attempts, f.opts
		if opts.MaxAttempts > 0 && attempts > opts.MaxAttempts {
			f.err = errors.New(errors.ErrCodeTimeout, "toolpath still being computed").
				WithDetail("file", filename).
				WithDetail("attempts", attempts-1)
		}
		giveUp := f.err != nil
		f.mu.Unlock()
		f.changed()

		if giveUp {
			logger.WithField("attempts", attempts-1).Warn("Giving up on toolpath still being computed")
			return
		}
		logger.WithField("progress", f.Progress()).Debug("Toolpath still computing, retrying")
		f.request(ctx, filename, gen, backoff(opts, attempts))
		return
	}
	f.mu.Unlock()

	var plan Plan
	if err := mapstructure.WeakDecode(resp.ToAny(), &plan); err != nil {
		f.mu.Lock()
		f.err = errors.Wrap(err, errors.ErrCodeProtocolViolation, "malformed toolpath plan").WithDetail("file", filename)
		f.mu.Unlock()
		logger.WithError(err).Error("Malformed toolpath plan")
		f.changed()
		return
	}
	plan.Filename = filename

	f.mu.Lock()
	f.progress = 1
	f.plan = &plan
	f.mu.Unlock()

	f.publish(resp)
	logger.WithField("time", plan.Time).Info("Toolpath loaded")
	f.changed()
}

// publish copies the plan bounds into the state as path_min_<axis> and
// path_max_<axis>. Missing bounds publish null.
func (f *Fetcher) publish(resp tree.Map) {
	if f.publisher == nil {
		return
	}

	delta := tree.Map{}
	for _, a := range machine.Axes {
		axis := string(a)
		for _, side := range []string{"min", "max"} {
			v, ok := tree.Get(resp, "bounds."+side+"."+axis)
			if !ok {
				v = tree.S(nil)
			}
			delta["path_"+side+"_"+axis] = v
		}
	}

	if err := f.publisher.Apply(delta); err != nil {
		f.logger.WithError(err).Warn("Failed to publish toolpath bounds")
	}
}

func (f *Fetcher) changed() {
	f.mu.Lock()
	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

const defaultRetryMax = time.Minute

// backoff returns the delay before re-request number attempt (1-based).
func backoff(opts Options, attempt int) time.Duration {
	if opts.RetryInitial <= 0 {
		return 0
	}
	limit := opts.RetryMax
	if limit <= 0 {
		limit = defaultRetryMax
	}
	d := opts.RetryInitial
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}
