package state

import (
	"sync"
	"sync/atomic"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// Reserved delta keys routed to side channels instead of the snapshot.
const (
	LogKey     = "log"
	MessageKey = "message"
)

// LogEntry is a controller log record pushed on the delta channel.
type LogEntry struct {
	Level  string  `mapstructure:"level" json:"level"`
	Source string  `mapstructure:"source" json:"source,omitempty"`
	Msg    string  `mapstructure:"msg" json:"msg"`
	Where  string  `mapstructure:"where" json:"where,omitempty"`
	Repeat int     `mapstructure:"repeat" json:"repeat,omitempty"`
	Ts     float64 `mapstructure:"ts" json:"ts,omitempty"`
}

type subscriber struct {
	id int
	fn func()
}

// Store mirrors the controller's state and configuration.
//
// Mutation is owned by one goroutine (the session event loop); other
// goroutines may read through Snapshot and the getters at any time.
// Subscribers run synchronously on the mutating goroutine after the lock is
// released, exactly once per applied change.
type Store struct {
	mu       sync.RWMutex
	state    tree.Map
	config   tree.Map
	modified bool

	subMu      sync.Mutex
	nextID     int
	stateSubs  []subscriber
	configSubs []subscriber

	dispatching atomic.Bool

	onLog     func(LogEntry)
	onMessage func(interface{})

	logger *logrus.Entry
}

// New creates an empty Store.
func New(logger *logrus.Entry) *Store {
	return &Store{
		state:  tree.Map{},
		config: tree.Map{},
		logger: logger,
	}
}

// OnLog sets the sink for `log` side-channel entries.
func (s *Store) OnLog(fn func(LogEntry)) { s.onLog = fn }

// OnMessage sets the sink for `message` side-channel payloads.
func (s *Store) OnMessage(fn func(interface{})) { s.onMessage = fn }

// Apply merges a delta into the state snapshot and notifies subscribers.
// The caller's map is not modified. A delta that would change the kind of an
// existing path (scalar to mapping or back) is rejected as a whole, side
// channels included.
func (s *Store) Apply(delta tree.Map) error {
	if s.dispatching.Load() {
		return errors.Reentrant("apply")
	}

	update := make(tree.Map, len(delta))
	for k, v := range delta {
		update[k] = v
	}

	logValue, hasLog := update[LogKey]
	delete(update, LogKey)
	messageValue, hasMessage := update[MessageKey]
	delete(update, MessageKey)

	s.mu.Lock()
	if conflicts := tree.Conflicts(s.state, update); len(conflicts) > 0 {
		s.mu.Unlock()
		s.logger.WithField("paths", conflicts).Warn("Rejected delta changing the type of existing state")
		return errors.ProtocolViolation(conflicts)
	}
	tree.Merge(s.state, update, false)
	s.mu.Unlock()

	if hasLog {
		s.routeLog(logValue)
	}
	if hasMessage && s.onMessage != nil {
		s.onMessage(tree.ToAny(messageValue))
	}

	s.notify(s.stateSubscribers())
	return nil
}

func (s *Store) routeLog(v tree.Value) {
	if s.onLog == nil {
		return
	}

	// A single entry is the normal shape; accept a batch too.
	var raw []interface{}
	switch val := tree.ToAny(v).(type) {
	case []interface{}:
		raw = val
	default:
		raw = []interface{}{val}
	}

	for _, item := range raw {
		var entry LogEntry
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &entry,
			WeaklyTypedInput: true,
		})
		if err == nil {
			err = decoder.Decode(item)
		}
		if err != nil {
			s.logger.WithError(err).Debug("Ignoring malformed log entry")
			continue
		}
		s.onLog(entry)
	}
}

// Set stages a local value in the state snapshot.
func (s *Store) Set(path string, value interface{}) error {
	if s.dispatching.Load() {
		return errors.Reentrant("set")
	}

	s.mu.Lock()
	err := tree.Set(s.state, path, tree.FromAny(value))
	s.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to set state").WithDetail("path", path)
	}

	s.notify(s.stateSubscribers())
	return nil
}

// Reset replaces the state snapshot wholesale.
func (s *Store) Reset(initial tree.Map) {
	s.mu.Lock()
	if initial == nil {
		s.state = tree.Map{}
	} else {
		s.state = initial.Clone()
	}
	s.mu.Unlock()

	s.notify(s.stateSubscribers())
}

// LoadConfig replace-merges a full device configuration and clears the
// modified flag.
func (s *Store) LoadConfig(full tree.Map) error {
	if s.dispatching.Load() {
		return errors.Reentrant("load config")
	}

	s.mu.Lock()
	tree.Merge(s.config, full, true)
	s.modified = false
	s.mu.Unlock()

	s.notify(s.configSubscribers())
	return nil
}

// SetConfig edits a configuration value locally and marks the configuration
// modified until MarkSaved.
func (s *Store) SetConfig(path string, value interface{}) error {
	if s.dispatching.Load() {
		return errors.Reentrant("set config")
	}

	s.mu.Lock()
	err := tree.Set(s.config, path, tree.FromAny(value))
	if err == nil {
		s.modified = true
	}
	s.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to set config").WithDetail("path", path)
	}

	s.notify(s.configSubscribers())
	return nil
}

// Modified reports whether the configuration has unsaved local edits.
func (s *Store) Modified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// MarkSaved clears the modified flag after a successful save.
func (s *Store) MarkSaved() {
	s.mu.Lock()
	s.modified = false
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the state.
func (s *Store) Snapshot() tree.Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// ConfigSnapshot returns a deep copy of the configuration.
func (s *Store) ConfigSnapshot() tree.Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone()
}

// Get returns a copy of the state value at a dotted path.
func (s *Store) Get(path string) (tree.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := tree.Get(s.state, path)
	if !ok {
		return nil, false
	}
	return tree.Clone(v), true
}

// GetString returns the string at path, or "".
func (s *Store) GetString(path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := tree.String(s.state, path)
	return v
}

// GetFloat returns the number at path, or 0.
func (s *Store) GetFloat(path string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := tree.Float(s.state, path)
	return v
}

// GetBool returns the boolean at path, or false.
func (s *Store) GetBool(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := tree.Bool(s.state, path)
	return v
}

// ConfigGet returns a copy of the configuration value at a dotted path.
func (s *Store) ConfigGet(path string) (tree.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := tree.Get(s.config, path)
	if !ok {
		return nil, false
	}
	return tree.Clone(v), true
}

// Subscribe registers fn to run after every state change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func()) func() {
	return s.subscribe(&s.stateSubs, fn)
}

// SubscribeConfig registers fn to run after every configuration change.
func (s *Store) SubscribeConfig(fn func()) func() {
	return s.subscribe(&s.configSubs, fn)
}

func (s *Store) subscribe(list *[]subscriber, fn func()) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextID++
	id := s.nextID
	*list = append(*list, subscriber{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range *list {
			if sub.id == id {
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) stateSubscribers() []subscriber {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return append([]subscriber(nil), s.stateSubs...)
}

func (s *Store) configSubscribers() []subscriber {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return append([]subscriber(nil), s.configSubs...)
}

func (s *Store) notify(subs []subscriber) {
	if len(subs) == 0 {
		return
	}
	s.dispatching.Store(true)
	defer s.dispatching.Store(false)
	for _, sub := range subs {
		sub.fn()
	}
}
