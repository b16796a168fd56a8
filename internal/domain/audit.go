package domain

import (
	"context"
	"time"
)

// AuditEntry is one durable record of an invocation attempt. Entries are
// appended, never mutated or deleted. Args must already be sanitized when
// the entry is constructed.
type AuditEntry struct {
	ID         string         `json:"id"`
	TS         time.Time      `json:"ts"`
	Agent      string         `json:"agent,omitempty"`
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args"`
	OK         bool           `json:"ok"`
	Error      string         `json:"error,omitempty"`
	Code       ErrorCode      `json:"code,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// AuditLogger records invocation attempts.
type AuditLogger interface {
	Log(ctx context.Context, entry AuditEntry) error
}
