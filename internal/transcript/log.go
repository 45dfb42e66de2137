// Package transcript maintains the bounded, append-only conversation log
// shown to the user: model speech transcriptions, recognised user speech,
// and system status/error lines.
package transcript

import (
	"sync"
	"time"
)

// DefaultMaxEntries is the number of log lines retained. Older entries are
// evicted oldest-first.
const DefaultMaxEntries = 50

// Role identifies the author of a log entry.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Entry is a single line of the conversation log.
type Entry struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Log is a fixed-capacity, append-only ring of conversation entries.
// All methods are safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
}

// New creates a Log retaining at most maxSize entries. A non-positive
// maxSize falls back to [DefaultMaxEntries].
func New(maxSize int) *Log {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	return &Log{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Append adds an entry with the current time, evicting the oldest entries
// beyond the capacity.
func (l *Log) Append(role Role, text string) {
	l.AppendEntry(Entry{Role: role, Text: text, Timestamp: time.Now()})
}

// AppendEntry adds a fully-formed entry, evicting oldest-first beyond the
// capacity.
func (l *Log) AppendEntry(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	if excess := len(l.entries) - l.maxSize; excess > 0 {
		l.entries = append(l.entries[:0], l.entries[excess:]...)
	}
}

// Entries returns a copy of the retained entries in arrival order
// (oldest first).
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
