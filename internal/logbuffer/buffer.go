/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps recent log lines in memory for the logs endpoint.
package logbuffer

import (
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 5000

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	ListID    string         `json:"listId,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-size ring of entries, safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
}

// New creates a buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, overwriting the oldest once full.
func (b *Buffer) Add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// All returns every entry, oldest first.
func (b *Buffer) All() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, b.count)
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(start+i)%b.capacity]
	}
	return out
}

// Query narrows the entries returned by Buffer.Query.
type Query struct {
	Level     string
	Component string
	ListID    string
	Search    string
	Since     time.Time
	Limit     int
	// Newest returns the most recent entries first.
	Newest bool
}

// Query returns entries matching q.
func (b *Buffer) Query(q Query) []Entry {
	search := strings.ToLower(q.Search)

	out := make([]Entry, 0)
	for _, e := range b.All() {
		if q.Level != "" && !strings.EqualFold(e.Level, q.Level) {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		if q.ListID != "" && e.ListID != q.ListID {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if search != "" && !e.contains(search) {
			continue
		}
		out = append(out, e)
	}

	if q.Newest {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (e Entry) contains(lowered string) bool {
	if strings.Contains(strings.ToLower(e.Message), lowered) ||
		strings.Contains(strings.ToLower(e.Component), lowered) {
		return true
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), lowered) {
			return true
		}
	}
	return false
}

// Stats summarises the buffer.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	Levels     map[string]int `json:"levels"`
	Components []string       `json:"components"`
}

// Stats counts entries per level and lists the components seen.
func (b *Buffer) Stats() Stats {
	entries := b.All()
	stats := Stats{
		Capacity:   b.capacity,
		Count:      len(entries),
		Levels:     make(map[string]int),
		Components: make([]string, 0),
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		stats.Levels[e.Level]++
		if e.Component != "" && !seen[e.Component] {
			seen[e.Component] = true
			stats.Components = append(stats.Components, e.Component)
		}
	}
	sort.Strings(stats.Components)
	return stats
}

// Writer is an io.Writer for zerolog JSON output that captures each line.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
}

// NewWriter captures into buffer and forwards to fallback when it is set.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback}
}

// Write implements io.Writer. Lines that are not JSON objects are forwarded
// but not captured.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err == nil {
		w.buffer.Add(parseEntry(raw))
	}
	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}

func parseEntry(raw map[string]any) Entry {
	entry := Entry{Timestamp: time.Now().UTC()}

	if v, ok := raw["level"].(string); ok {
		entry.Level = v
	}
	if v, ok := raw["message"].(string); ok {
		entry.Message = v
	}
	if v, ok := raw["component"].(string); ok {
		entry.Component = v
	}
	if v, ok := raw["list_id"].(string); ok {
		entry.ListID = v
	}
	switch ts := raw["time"].(type) {
	case float64:
		entry.Timestamp = time.Unix(int64(ts), 0).UTC()
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Timestamp = t
		}
	}

	for _, k := range []string{"level", "message", "component", "list_id", "time"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry
}
