package alerts

import (
	"sync"
	"time"

	"github.com/grovetools/cncctl/state"
)

// DefaultErrorTimeout is how long a blocked error class stays quiet.
const DefaultErrorTimeout = 30 * time.Second

// repeatWindow suppresses a repeated error reported this soon after its
// previous occurrence.
const repeatWindow = time.Second

// Gate decides which controller errors are shown to the user.
type Gate struct {
	mu      sync.Mutex
	timeout time.Duration
	blocked map[string]time.Time
	last    string
	now     func() time.Time
}

// NewGate creates a Gate; a non-positive timeout uses DefaultErrorTimeout.
func NewGate(timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultErrorTimeout
	}
	return &Gate{
		timeout: timeout,
		blocked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetTimeout changes the block duration for current and future blocks.
func (g *Gate) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultErrorTimeout
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timeout = d
}

// Class returns the suppression class of an entry: its source, or its
// message when the controller didn't name one.
func Class(e state.LogEntry) string {
	if e.Source != "" {
		return e.Source
	}
	return e.Msg
}

// Allow reports whether an error entry should be shown. An allowed entry
// becomes the one BlockLast blocks.
func (g *Gate) Allow(e state.LogEntry) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	class := Class(e)

	if at, ok := g.blocked[class]; ok {
		if now.Sub(at) < g.timeout {
			return false
		}
		delete(g.blocked, class)
	}

	if e.Repeat > 1 && now.Sub(time.UnixMilli(int64(e.Ts))) < repeatWindow {
		return false
	}

	g.last = class
	return true
}

// Block suppresses a class for the gate's timeout, starting now.
func (g *Gate) Block(class string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked[class] = g.now()
}

// BlockLast blocks the class of the most recently shown error. It reports
// false when nothing has been shown yet.
func (g *Gate) BlockLast() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == "" {
		return false
	}
	g.blocked[g.last] = g.now()
	return true
}

// Blocked reports whether a class is currently suppressed.
func (g *Gate) Blocked(class string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.blocked[class]
	return ok && g.now().Sub(at) < g.timeout
}
