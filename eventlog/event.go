package eventlog

import (
	"sync"
	"time"
)

// Status is the state a node transitions into.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusBuilt     Status = "built"
	StatusFailed    Status = "failed"
	StatusSimulated Status = "simulated"
)

// Terminal reports whether s ends a node's run.
func (s Status) Terminal() bool {
	return s == StatusBuilt || s == StatusFailed || s == StatusSimulated
}

// Event is one state transition.
type Event struct {
	Node    string    `json:"node"`
	Status  Status    `json:"status"`
	Time    time.Time `json:"time"`
	RunID   string    `json:"run_id,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Log accepts events. Implementations are safe for concurrent use.
type Log interface {
	Append(e Event) error
}

// MemoryLog keeps events in memory.
type MemoryLog struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryLog creates an empty MemoryLog.
func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

// Append implements Log.
func (l *MemoryLog) Append(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

// Events returns a copy of every appended event in order.
func (l *MemoryLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
