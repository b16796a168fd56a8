package security

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"warden/internal/domain"
)

// FileAuditLogger implements domain.AuditLogger by appending JSONL to a
// file. Entries are never rewritten in place; retention trims by whole
// lines through an atomic temp-file-then-rename.
type FileAuditLogger struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxBytes int64 // 0 = unbounded
}

// NewFileAuditLogger opens (or creates, 0600) the audit log at path.
func NewFileAuditLogger(path string) (*FileAuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileAuditLogger{file: f, path: path}, nil
}

// SetMaxBytes configures the retention size ceiling.
func (a *FileAuditLogger) SetMaxBytes(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxBytes = n
}

// Log appends one audit entry as a single JSON line. Timestamp and ID are
// filled if missing.
func (a *FileAuditLogger) Log(ctx context.Context, entry domain.AuditEntry) error {
	if entry.TS.IsZero() {
		entry.TS = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	// Mirror the entry as a span event when a trace is active.
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("audit.invocation", trace.WithAttributes(
			attribute.String("audit.tool", entry.Tool),
			attribute.Bool("audit.ok", entry.OK),
			attribute.String("audit.code", string(entry.Code)),
		))
	}

	return nil
}

// ReadAll returns every parseable entry in order. Used by tests and the
// CLI's audit inspection; corrupt lines are skipped.
func (a *FileAuditLogger) ReadAll() ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var entries []domain.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e domain.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// EnforceRetention drops the oldest whole lines until the file fits the
// configured ceiling. The rewrite goes through a temp file and rename so a
// crash never leaves a torn log.
func (a *FileAuditLogger) EnforceRetention() (removed int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxBytes <= 0 {
		return 0, nil
	}
	info, err := os.Stat(a.path)
	if err != nil {
		return 0, fmt.Errorf("stat audit log: %w", err)
	}
	if info.Size() <= a.maxBytes {
		return 0, nil
	}

	f, err := os.Open(a.path)
	if err != nil {
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	f.Close()
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan audit log: %w", err)
	}

	var total int64
	keepFrom := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		total += int64(len(lines[i])) + 1
		if total > a.maxBytes {
			break
		}
		keepFrom = i
	}
	removed = keepFrom

	tmp, err := os.CreateTemp(filepath.Dir(a.path), "audit.tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp audit log: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	for _, line := range lines[keepFrom:] {
		if _, err := tmp.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return 0, fmt.Errorf("write temp audit log: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("sync temp audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp audit log: %w", err)
	}

	if err := a.file.Close(); err != nil {
		return 0, fmt.Errorf("close audit log: %w", err)
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		return 0, fmt.Errorf("rename audit log: %w", err)
	}
	a.file, err = os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("reopen audit log: %w", err)
	}
	return removed, nil
}

// Close flushes and closes the audit log file.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
