// Package logstore captures process output in memory, keyed by an
// identifier such as a run or build ID.
package logstore

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is a snapshot of one captured log.
type Entry struct {
	ID        string
	Size      int64
	UpdatedAt time.Time
}

// Store is an in-memory, append-only log store. One instance backs each
// log family (run logs, build logs); contents live until process exit.
type Store struct {
	mu   sync.RWMutex
	logs map[string]*buffer
}

type buffer struct {
	data      strings.Builder
	updatedAt time.Time
}

// NewStore creates an empty log store.
func NewStore() *Store {
	return &Store{logs: make(map[string]*buffer)}
}

// Append adds a line of output to the log with the given ID, creating
// the log on first write. A trailing newline is added when missing.
func (s *Store) Append(id, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.logs[id]
	if !ok {
		buf = &buffer{}
		s.logs[id] = buf
	}
	buf.data.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		buf.data.WriteString("\n")
	}
	buf.updatedAt = time.Now()
}

// Content returns the full captured output for an ID, or false when the
// ID is unknown.
func (s *Store) Content(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.logs[id]
	if !ok {
		return "", false
	}
	return buf.data.String(), true
}

// List returns entries whose ID starts with prefix (all entries when
// prefix is empty), sorted by ID for stable pagination.
func (s *Store) List(prefix string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.logs))
	for id, buf := range s.logs {
		if prefix != "" && !strings.HasPrefix(id, prefix) {
			continue
		}
		entries = append(entries, Entry{
			ID:        id,
			Size:      int64(buf.data.Len()),
			UpdatedAt: buf.updatedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}
