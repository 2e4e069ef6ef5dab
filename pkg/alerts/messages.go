package alerts

import (
	"context"
	"sync"
)

// Commander issues command API requests.
type Commander interface {
	Put(ctx context.Context, verb string, body interface{}) error
}

// Close actions for the message list.
const (
	ActionStop     = "stop"
	ActionContinue = "continue"
)

// Messages collects operator messages pushed by the controller (program
// prompts such as tool changes), newest first.
type Messages struct {
	api Commander

	mu    sync.Mutex
	items []interface{}
	show  bool
}

// NewMessages creates an empty message list.
func NewMessages(api Commander) *Messages {
	return &Messages{api: api}
}

// Add prepends a message and raises the list.
func (m *Messages) Add(msg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]interface{}{msg}, m.items...)
	m.show = true
}

// List returns the messages, newest first.
func (m *Messages) List() []interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interface{}(nil), m.items...)
}

// Showing reports whether the list has been raised since it was last closed.
func (m *Messages) Showing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.show
}

// Close clears the list. ActionStop stops the program, ActionContinue
// resumes it; any other action only dismisses.
func (m *Messages) Close(ctx context.Context, action string) error {
	m.mu.Lock()
	m.items = nil
	m.show = false
	m.mu.Unlock()

	switch action {
	case ActionStop:
		return m.api.Put(ctx, "stop", nil)
	case ActionContinue:
		return m.api.Put(ctx, "unpause", nil)
	}
	return nil
}
