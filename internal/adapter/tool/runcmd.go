package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"warden/internal/domain"
	"warden/internal/security"
)

// RunCmdTool executes allowlisted commands through the command gate. The
// gate owns the timeout, output ceiling, flag checking, and path
// validation of bare arguments.
type RunCmdTool struct {
	gate   *security.CommandGate
	logger *slog.Logger
}

// NewRunCmdTool creates the gated process execution tool.
func NewRunCmdTool(gate *security.CommandGate, logger *slog.Logger) *RunCmdTool {
	return &RunCmdTool{gate: gate, logger: logger}
}

func (t *RunCmdTool) Name() string { return "run_cmd" }
func (t *RunCmdTool) Description() string {
	return "Run an allowlisted command with validated arguments"
}
func (t *RunCmdTool) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityProcess}
}

func (t *RunCmdTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "The command to execute"},
				"args": {"type": "array", "items": {"type": "string"}, "description": "Command arguments"}
			},
			"required": ["command"],
			"additionalProperties": false
		}`),
	}
}

type runCmdParams struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

func (t *RunCmdTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return Execute(ctx, "tool.run_cmd", t.logger, params,
		func(ctx context.Context, span trace.Span, p runCmdParams) (any, error) {
			result, err := t.gate.Run(ctx, p.Command, p.Args)
			if err != nil {
				return nil, err
			}
			t.logger.Debug("command completed",
				"command", p.Command, "truncated", result.Truncated)
			return result, nil
		},
	)
}
