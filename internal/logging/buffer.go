package logging

import (
	"sync"
	"time"
)

// LogEntry is one buffered log record.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries. Safe for concurrent use.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

// NewRingBuffer creates a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, size)}
}

// Write appends an entry, dropping the oldest when full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.entries) == 0 {
		return
	}
	rb.entries[rb.next] = entry
	rb.next++
	if rb.next == len(rb.entries) {
		rb.next, rb.full = 0, true
	}
}

// ReadAll returns every entry, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Tail(0, "")
}

// Tail returns up to limit of the newest entries from module, oldest first.
// A zero limit returns all matches and an empty module matches every entry.
func (rb *RingBuffer) Tail(limit int, module string) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := rb.next
	if rb.full {
		n = len(rb.entries)
	}
	var out []LogEntry
	// Walk newest to oldest so the limit applies to the most recent entries.
	for i := 0; i < n; i++ {
		e := rb.entries[(rb.next-1-i+len(rb.entries))%len(rb.entries)]
		if module != "" && e.Module != module {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
