// Package history implements the append-only, size-bounded durable message log.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lanboard/lanboard/pkg/proto"
)

// maxRecordBytes bounds a single journal line. A message caps out well below
// this (5000 chars of text plus attachment metadata).
const maxRecordBytes = 1 << 20

// Log is the durable message history. The journal holds one JSON record per
// line: appends are incremental, deletes and clears rewrite the whole file.
// A single mutex serializes every operation, reads included.
type Log struct {
	mu    sync.Mutex
	path  string
	limit int
	items []proto.Message
}

// New creates a log persisted at path, bounded to limit entries in memory.
func New(path string, limit int) *Log {
	return &Log{path: path, limit: limit}
}

// Load reads the journal from disk. Malformed lines are skipped. If the file
// holds more than the limit, only the most recent entries are kept in memory;
// the file itself is not rewritten.
func (l *Log) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var items []proto.Message
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var m proto.Message
		if err := json.Unmarshal(line, &m); err != nil {
			skipped++
			continue
		}
		items = append(items, m)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	if len(items) > l.limit {
		items = items[len(items)-l.limit:]
	}
	l.items = items

	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Str("path", l.path).Msg("journal had malformed records")
	}
	return nil
}

// Append adds the message to the tail and durably writes the single new
// record. Entries past the limit are evicted from memory only. On a write
// failure the in-memory mutation stands and the error is returned.
func (l *Log) Append(m proto.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, m)
	if over := len(l.items) - l.limit; over > 0 {
		l.items = l.items[over:]
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	_, werr := f.Write(append(data, '\n'))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("append record: %w", werr)
	}
	return nil
}

// Snapshot returns a copy of the current ordered message sequence.
func (l *Log) Snapshot() []proto.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]proto.Message, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the current number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Remove deletes the entry with the given id and rewrites the journal.
// It returns the removed message, or nil when no entry matched (not an
// error). A rewrite failure still removes the entry from memory.
func (l *Log) Remove(id string) (*proto.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, m := range l.items {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}

	removed := l.items[idx]
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	return &removed, l.rewriteLocked()
}

// Clear empties the log and rewrites the journal to empty.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	return l.rewriteLocked()
}

// rewriteLocked writes the full surviving set, one record per line.
// Callers must hold the mutex.
func (l *Log) rewriteLocked() error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("rewrite journal: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, m := range l.items {
		data, err := json.Marshal(m)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("encode record: %w", err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("rewrite journal: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("rewrite journal: %w", err)
	}
	return nil
}
