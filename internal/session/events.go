package session

import (
	"github.com/grovetools/cncctl/internal/conn"
	"github.com/grovetools/cncctl/state"
)

// EventType defines what kind of change an Event reports.
type EventType string

const (
	EventConnection EventType = "connection"
	EventState      EventType = "state"
	EventConfig     EventType = "config"
	EventLine       EventType = "line"
	EventLoad       EventType = "load"
	EventReload     EventType = "reload"
	EventUnits      EventType = "units"
	EventLog        EventType = "log"
	EventAlert      EventType = "alert"
	EventMessage    EventType = "message"
	EventToolpath   EventType = "toolpath"
	EventUpgrade    EventType = "upgrade-available"
	EventError      EventType = "error"
)

// Event is a notification from the session to its subscribers.
type Event struct {
	Type EventType

	Status   conn.Status     // EventConnection
	Line     int             // EventLine
	File     string          // EventLoad, EventReload, EventToolpath
	Imperial bool            // EventUnits
	Log      *state.LogEntry // EventLog, EventAlert
	Message  interface{}     // EventMessage
	Version  string          // EventUpgrade
	Op       string          // EventError
	Err      error           // EventError
}

// Subscribe creates a buffered subscription channel for session events.
// Slow subscribers miss events rather than stalling the session.
func (s *Session) Subscribe() chan Event {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(chan Event, 100)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Session) Unsubscribe(ch chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}

func (s *Session) emit(e Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
