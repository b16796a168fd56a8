package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"warden/internal/domain"
)

// The safe tools are pure computation: no filesystem, process, or network
// effect. They form the fixed set runnable without an agent context.

// CurrentTimeTool reports the current time.
type CurrentTimeTool struct {
	clock  func() time.Time
	logger *slog.Logger
}

// NewCurrentTimeTool creates the current_time tool.
func NewCurrentTimeTool(logger *slog.Logger) *CurrentTimeTool {
	return &CurrentTimeTool{clock: time.Now, logger: logger}
}

func (t *CurrentTimeTool) Name() string        { return "current_time" }
func (t *CurrentTimeTool) Description() string { return "Report the current date and time" }
func (t *CurrentTimeTool) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityNone}
}

func (t *CurrentTimeTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"format": {"type": "string", "description": "Go time layout (default RFC 3339)"}
			},
			"additionalProperties": false
		}`),
	}
}

type currentTimeParams struct {
	Format string `json:"format,omitempty"`
}

func (t *CurrentTimeTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return Execute(ctx, "tool.current_time", t.logger, params,
		func(_ context.Context, _ trace.Span, p currentTimeParams) (any, error) {
			layout := p.Format
			if layout == "" {
				layout = time.RFC3339
			}
			return map[string]string{"time": t.clock().Format(layout)}, nil
		},
	)
}

// EchoTool returns its input unchanged.
type EchoTool struct {
	logger *slog.Logger
}

// NewEchoTool creates the echo tool.
func NewEchoTool(logger *slog.Logger) *EchoTool {
	return &EchoTool{logger: logger}
}

func (t *EchoTool) Name() string        { return "echo" }
func (t *EchoTool) Description() string { return "Return the given text unchanged" }
func (t *EchoTool) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityNone}
}

func (t *EchoTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {"type": "string", "description": "Text to echo back"}
			},
			"required": ["text"],
			"additionalProperties": false
		}`),
	}
}

type echoParams struct {
	Text string `json:"text"`
}

func (t *EchoTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return Execute(ctx, "tool.echo", t.logger, params,
		func(_ context.Context, _ trace.Span, p echoParams) (any, error) {
			return map[string]string{"text": p.Text}, nil
		},
	)
}
