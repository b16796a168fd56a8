package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool and the JSON Schema of its arguments.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a proposed invocation. Arguments are untyped at this boundary;
// they are validated against the tool's schema by the permission engine
// before any handler sees them.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"tool_name"`
	Arguments json.RawMessage `json:"args"`
}

// ToolError is the structured error carried by a failed ToolResult.
type ToolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ToolDebug carries timing and bookkeeping info for a ToolResult.
type ToolDebug struct {
	DurationMS int64  `json:"duration_ms"`
	CallID     string `json:"call_id,omitempty"`
}

// ToolResult is the single structured outcome of one execution attempt.
// OK and Error are mutually exclusive. NeedsConfirmation marks the distinct
// confirmation-required outcome: not a success, but also not a hard failure —
// the caller may re-issue the call with the confirmation flag set.
type ToolResult struct {
	OK                bool            `json:"ok"`
	Result            json.RawMessage `json:"result"`
	Error             *ToolError      `json:"error"`
	NeedsConfirmation bool            `json:"needs_confirmation,omitempty"`
	Debug             ToolDebug       `json:"debug"`
}

// Capability names a privilege a tool handler is granted. Handlers receive
// only the capabilities their registry entry declares; nothing hands a tool
// raw filesystem or process access.
type Capability string

const (
	CapabilityNone       Capability = "none"
	CapabilityFilesystem Capability = "filesystem"
	CapabilityProcess    Capability = "process"
	CapabilityStore      Capability = "store"
	CapabilityScheduler  Capability = "scheduler"
)

// Tool is the interface every tool handler implements. Execute returns the
// raw result payload; wrapping into a ToolResult (and auditing) is the
// execution engine's job, never the handler's.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Capabilities() []Capability
	Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
}

// ToolCatalog abstracts tool lookup for the router and executor.
type ToolCatalog interface {
	Get(name string) (Tool, error)
	Names() []string
	Schemas() []ToolSchema
}
