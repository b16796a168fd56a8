// Package store provides the append-only JSONL file store used by the
// stateful tools (tasks, memory, reminders) and the audit log. Writes are
// crash-safe: appends are single lines, full replacement goes through a
// temp-file-then-rename so readers never observe a half-written file.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// maxCorruptWarnings caps per-read corruption logging so a badly mangled
// file cannot flood the log.
const maxCorruptWarnings = 5

// JSONL is an append-only store of records of type T, one JSON object per
// line. The zero value is not usable; use New.
type JSONL[T any] struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// New creates a JSONL store at path. The parent directory is created if it
// does not exist; the file itself is created lazily on first append.
func New[T any](path string, logger *slog.Logger) (*JSONL[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &JSONL[T]{path: path, logger: logger}, nil
}

// Path returns the backing file path.
func (s *JSONL[T]) Path() string { return s.path }

// Append durably appends one record as a single JSON line.
func (s *JSONL[T]) Append(rec T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if bytes.ContainsRune(data, '\n') {
		// json.Marshal never emits raw newlines, but guard the file format anyway.
		return fmt.Errorf("record serializes to multiple lines")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return f.Sync()
}

// ReadAll returns every parseable record in insertion order. A line that
// fails to parse is skipped, not fatal: partial data beats total failure
// for user-facing logs and task lists. Corruption warnings are capped.
func (s *JSONL[T]) ReadAll() ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAllLocked()
}

func (s *JSONL[T]) readAllLocked() ([]T, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	var (
		records []T
		corrupt int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			corrupt++
			if s.logger != nil && corrupt <= maxCorruptWarnings {
				s.logger.Warn("skipping corrupt store line",
					"path", s.path, "error", err)
			}
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scan store: %w", err)
	}
	if s.logger != nil && corrupt > maxCorruptWarnings {
		s.logger.Warn("additional corrupt store lines suppressed",
			"path", s.path, "total", corrupt)
	}
	return records, nil
}

// Replace atomically rewrites the store with exactly the given records.
// The new contents are written to a temp file in the same directory, synced,
// then renamed over the original; a crash mid-write leaves the old file
// intact, and concurrent readers only ever see one version or the other.
func (s *JSONL[T]) Replace(records []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("write temp store: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush temp store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp store: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename temp store: %w", err)
	}
	return nil
}

// Update reads all records, applies fn, and atomically replaces the file
// with fn's output. This is the read-modify-write-all primitive used to
// supersede record state (e.g., marking a task done).
func (s *JSONL[T]) Update(fn func(records []T) ([]T, error)) error {
	s.mu.Lock()
	records, err := s.readAllLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	updated, err := fn(records)
	if err != nil {
		return err
	}
	return s.Replace(updated)
}
