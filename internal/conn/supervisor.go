package conn

import (
	"context"
	"sync"
	"time"

	"github.com/grovetools/cncctl/config"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/sirupsen/logrus"
)

// Status is the connection state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Handlers are the supervisor's callbacks. All of them run through the
// post function given to NewSupervisor, in the order events occurred.
type Handlers struct {
	// Message receives every inbound object payload.
	Message func(tree.Map)
	// Update runs on a connect that follows no drop.
	Update func()
	// Reload runs instead of Update on every connect after a drop: the
	// mirrored state may have missed deltas and needs a full resync.
	Reload func()
	// HostChanged runs when the supervisor moves to an announced hostname.
	HostChanged func(host string)
}

// Supervisor owns the delta channel: it connects, reconnects forever after
// drops, feeds inbound payloads to the handlers and gates outbound sends
// on the connection state.
type Supervisor struct {
	dialer   Dialer
	post     func(func())
	handlers Handlers
	logger   *logrus.Entry

	mu              sync.Mutex
	cfg             config.ControllerConfig
	status          Status
	ch              Channel
	reloadOnConnect bool
	pendingHost     string
	local           []func(Status)
	broadcast       []func(Status)
}

// NewSupervisor creates a supervisor in the connecting state. post schedules
// a function on the owning event loop; nil runs handlers on the connection
// goroutine.
func NewSupervisor(cfg config.ControllerConfig, dialer Dialer, post func(func()), handlers Handlers, logger *logrus.Entry) *Supervisor {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Supervisor{
		cfg:      cfg,
		dialer:   dialer,
		post:     post,
		handlers: handlers,
		logger:   logger,
		status:   StatusConnecting,
	}
}

// OnStatus registers a local listener for status changes.
func (s *Supervisor) OnStatus(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = append(s.local, fn)
}

// OnBroadcast registers a listener for status changes that components
// outside the session subscribe to (views, dashboards).
func (s *Supervisor) OnBroadcast(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = append(s.broadcast, fn)
}

// Status returns the current connection state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ReloadOnConnect reports whether the next connect triggers a full resync.
func (s *Supervisor) ReloadOnConnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadOnConnect
}

// Host returns the host the supervisor connects to.
func (s *Supervisor) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Host
}

// AnnounceHostname records that the controller's hostname is changing. The
// supervisor moves to it when reconnecting after the resulting drop.
func (s *Supervisor) AnnounceHostname(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingHost = host
}

// Send writes msg if connected. Nothing is queued: it returns false when the
// channel is not connected or the write fails.
func (s *Supervisor) Send(msg string) bool {
	s.mu.Lock()
	ch, status := s.ch, s.status
	s.mu.Unlock()

	if status != StatusConnected || ch == nil {
		return false
	}
	if err := ch.Send(msg); err != nil {
		s.logger.WithError(err).Warn("Failed to send message")
		return false
	}
	s.logger.WithField("msg", msg).Debug("Sent")
	return true
}

// Run connects and reconnects until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		s.connectOnce(ctx)

		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		interval := s.cfg.ReconnectInterval
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// connectOnce dials, serves one connection until it drops, and records the
// drop.
func (s *Supervisor) connectOnce(ctx context.Context) {
	s.mu.Lock()
	// Follow an announced hostname before dialing the old one.
	var newHost string
	if s.reloadOnConnect && s.pendingHost != "" {
		if s.pendingHost != s.cfg.Host {
			newHost = s.pendingHost
			s.cfg = s.cfg.WithHost(newHost)
		}
		s.pendingHost = ""
	}
	cfg := s.cfg
	s.mu.Unlock()

	logger := s.logger.WithField("host", cfg.Address())
	if newHost != "" {
		logger.Info("Controller hostname changed, reconnecting")
		if s.handlers.HostChanged != nil {
			s.post(func() { s.handlers.HostChanged(newHost) })
		}
	}

	ch, err := s.dialer.Dial(ctx, cfg)
	if err != nil {
		logger.WithError(err).Debug("Connect failed")
		return
	}

	s.mu.Lock()
	s.ch = ch
	reload := s.reloadOnConnect
	s.mu.Unlock()

	logger.Info("Connected")
	s.setStatus(StatusConnected)
	if reload {
		if s.handlers.Reload != nil {
			s.post(s.handlers.Reload)
		}
	} else if s.handlers.Update != nil {
		s.post(s.handlers.Update)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ch.Close()
		case <-done:
		}
	}()

	s.readLoop(ch, logger)
	close(done)
	ch.Close()

	s.mu.Lock()
	s.ch = nil
	s.reloadOnConnect = true
	s.mu.Unlock()

	if ctx.Err() == nil {
		logger.Warn("Disconnected")
	}
	s.setStatus(StatusDisconnected)
}

func (s *Supervisor) readLoop(ch Channel, logger *logrus.Entry) {
	for {
		payload, err := ch.Receive()
		if err != nil {
			logger.WithError(err).Debug("Channel closed")
			return
		}

		m, ok := tree.MapFromAny(payload)
		if !ok {
			logger.Debug("Ignoring non-object payload")
			continue
		}
		if s.handlers.Message != nil {
			s.post(func() { s.handlers.Message(m) })
		}
	}
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	local := append([]func(Status){}, s.local...)
	broadcast := append([]func(Status){}, s.broadcast...)
	s.mu.Unlock()

	s.post(func() {
		for _, fn := range local {
			fn(status)
		}
		for _, fn := range broadcast {
			fn(status)
		}
	})
}
