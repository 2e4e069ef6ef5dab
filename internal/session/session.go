// Package session runs the live controller client: one event loop that owns
// the mirrored state, fed by the delta channel, plan retrieval and user
// actions.
package session

import (
	"context"
	"io"
	"sync"

	"github.com/grovetools/cncctl/config"
	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/internal/conn"
	"github.com/grovetools/cncctl/pkg/alerts"
	"github.com/grovetools/cncctl/pkg/api"
	"github.com/grovetools/cncctl/pkg/machine"
	"github.com/grovetools/cncctl/pkg/toolpath"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/grovetools/cncctl/pkg/upgrade"
	"github.com/grovetools/cncctl/state"
	"github.com/sirupsen/logrus"
)

// Options configures a Session.
type Options struct {
	Config *config.Config
	// Dialer opens the delta channel; nil uses the websocket dialer.
	Dialer conn.Dialer
	Logger *logrus.Entry
}

// Session wires the state store, command API, delta channel, toolpath
// fetcher and alert handling around a single event loop. Everything that
// mutates the store runs on that loop.
type Session struct {
	cfg    *config.Config
	logger *logrus.Entry

	store      *state.Store
	api        *api.Client
	supervisor *conn.Supervisor
	fetcher    *toolpath.Fetcher
	controller *machine.Controller
	gate       *alerts.Gate
	messages   *alerts.Messages
	checker    *upgrade.Checker

	work chan func()
	done chan struct{}

	subMu       sync.Mutex
	subscribers map[chan Event]struct{}

	mu             sync.Mutex
	ctx            context.Context
	template       tree.Map
	latest         string
	upgradeChecked bool
	ready          chan struct{}
	readyOnce      sync.Once
	stateSeen      chan struct{}
	stateOnce      sync.Once

	// Last seen values of the watched state keys; loop-owned.
	selected *string
	line     *float64
	imperial *bool
}

// New creates a session. Run starts it.
func New(opts Options) *Session {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}

	s := &Session{
		cfg:         cfg,
		logger:      logger,
		work:        make(chan func(), 256),
		done:        make(chan struct{}),
		subscribers: make(map[chan Event]struct{}),
		ready:       make(chan struct{}),
		stateSeen:   make(chan struct{}),
		ctx:         context.Background(),
	}

	s.store = state.New(logger.WithField("component", "state"))
	s.api = api.New(cfg.Controller, logger.WithField("component", "api"))
	s.gate = alerts.NewGate(cfg.Alerts.ErrorTimeout)
	s.messages = alerts.NewMessages(s.api)
	s.checker = upgrade.NewChecker(cfg.Upgrade.URL, cfg.Controller.RequestTimeout, logger.WithField("component", "upgrade"))

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &conn.WebsocketDialer{Logger: logger.WithField("component", "conn")}
	}
	s.supervisor = conn.NewSupervisor(cfg.Controller, dialer, s.post, conn.Handlers{
		Message:     s.handleMessage,
		Update:      s.update,
		Reload:      s.reload,
		HostChanged: s.hostChanged,
	}, logger.WithField("component", "conn"))
	s.supervisor.OnStatus(func(st conn.Status) {
		s.emit(Event{Type: EventConnection, Status: st})
	})

	s.fetcher = toolpath.New(s.api, s.store, s.post, toolpathOptions(cfg.Toolpath), logger.WithField("component", "toolpath"))
	s.fetcher.OnChange(func() {
		s.emit(Event{Type: EventToolpath, File: s.fetcher.Filename()})
	})

	s.controller = machine.NewController(s.api, s.supervisor, s.store, logger.WithField("component", "machine"))

	s.store.OnLog(s.handleLog)
	s.store.OnMessage(func(msg interface{}) {
		s.messages.Add(msg)
		s.emit(Event{Type: EventMessage, Message: msg})
	})
	s.store.Subscribe(s.stateChanged)
	s.store.SubscribeConfig(func() { s.emit(Event{Type: EventConfig}) })

	return s
}

func toolpathOptions(c config.ToolpathConfig) toolpath.Options {
	return toolpath.Options{
		RetryInitial: c.RetryInitial,
		RetryMax:     c.RetryMax,
		MaxAttempts:  c.MaxAttempts,
	}
}

// Run starts the delta channel and processes events until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.supervisor.Run(ctx)
	}()

	s.logger.WithField("host", s.cfg.Controller.Address()).Info("Session started")
	for {
		select {
		case <-ctx.Done():
			close(s.done)
			wg.Wait()
			s.logger.Info("Session stopped")
			return nil
		case fn := <-s.work:
			fn()
		}
	}
}

// post schedules fn on the event loop. Work posted after the loop stopped
// is dropped.
func (s *Session) post(fn func()) {
	select {
	case s.work <- fn:
	case <-s.done:
	}
}

// Do runs fn on the event loop and waits for its result.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	s.post(func() { result <- fn() })
	select {
	case err := <-result:
		return err
	case <-s.done:
		return errors.NotConnected("session stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) loopContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// WaitReady blocks until the device configuration has been loaded once.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "timed out waiting for the controller").
			WithDetail("host", s.supervisor.Host())
	}
}

// WaitState blocks until the controller has pushed its state.
func (s *Session) WaitState(ctx context.Context) error {
	select {
	case <-s.stateSeen:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "timed out waiting for controller state").
			WithDetail("host", s.supervisor.Host())
	}
}

// WaitToolpath blocks until the plan of the selected file is loaded. It
// returns at once when no file is selected and reports the error that ended
// the plan's retrieval.
func (s *Session) WaitToolpath(ctx context.Context) error {
	events := s.Subscribe()
	defer s.Unsubscribe(events)

	for {
		selected := s.store.GetString("selected")
		if selected == "" {
			return nil
		}
		if s.fetcher.Filename() == selected {
			if p := s.fetcher.Plan(); p != nil {
				return nil
			}
			if err := s.fetcher.Err(); err != nil {
				return err
			}
		}

		select {
		case <-events:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "timed out waiting for the toolpath").
				WithDetail("file", selected)
		}
	}
}

// Config returns the client configuration the session was created with.
func (s *Session) Config() *config.Config { return s.cfg }

// Store returns the mirrored state and configuration.
func (s *Session) Store() *state.Store { return s.store }

// Controller returns the command layer.
func (s *Session) Controller() *machine.Controller { return s.controller }

// API returns the command API client.
func (s *Session) API() *api.Client { return s.api }

// Toolpath returns the plan fetcher.
func (s *Session) Toolpath() *toolpath.Fetcher { return s.fetcher }

// Gate returns the error alert gate.
func (s *Session) Gate() *alerts.Gate { return s.gate }

// Messages returns the operator message list.
func (s *Session) Messages() *alerts.Messages { return s.messages }

// ConnectionStatus returns the delta channel state.
func (s *Session) ConnectionStatus() conn.Status { return s.supervisor.Status() }

// OnBroadcast registers a connection listener outside the session.
func (s *Session) OnBroadcast(fn func(conn.Status)) { s.supervisor.OnBroadcast(fn) }

// Template returns the device configuration template loaded on connect.
func (s *Session) Template() tree.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.template == nil {
		return nil
	}
	return s.template.Clone()
}

// LatestVersion returns the last fetched latest firmware version.
func (s *Session) LatestVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// UpgradeAvailable reports whether the latest version is newer than the
// device's.
func (s *Session) UpgradeAvailable() bool {
	current, _ := tree.String(s.store.ConfigSnapshot(), "version")
	return upgrade.Available(current, s.LatestVersion())
}

// Status derives the machine status with the loaded plan's time.
func (s *Session) Status() machine.Status {
	return s.controller.Status(s.fetcher.Time())
}

// AnnounceHostname tells the session the controller is about to come back
// under another hostname.
func (s *Session) AnnounceHostname(host string) {
	s.supervisor.AnnounceHostname(host)
}

// ApplyConfig updates settings that can change on a running session.
func (s *Session) ApplyConfig(cfg *config.Config) {
	s.gate.SetTimeout(cfg.Alerts.ErrorTimeout)
	s.fetcher.SetOptions(toolpathOptions(cfg.Toolpath))
	s.logger.Info("Applied configuration reload")
}

func (s *Session) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Session) fail(op string, err error) {
	s.logger.WithError(err).WithField("op", op).Error("Operation failed")
	s.emit(Event{Type: EventError, Op: op, Err: err})
}
