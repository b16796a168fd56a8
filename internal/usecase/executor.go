package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"warden/internal/domain"
	"warden/internal/infra/tracer"
	"warden/internal/policy"
	"warden/internal/security"
)

// Executor runs authorized tool calls. Every attempt — allowed, denied,
// confirmation-required, or faulted — produces exactly one audit entry and
// one structured ToolResult. Handler faults, including panics, never
// propagate to the caller.
type Executor struct {
	engine  *policy.Engine
	catalog domain.ToolCatalog
	audit   domain.AuditLogger
	clock   func() time.Time
	logger  *slog.Logger
}

// NewExecutor creates an executor over the given engine, catalog, and
// audit logger.
func NewExecutor(engine *policy.Engine, catalog domain.ToolCatalog, audit domain.AuditLogger, logger *slog.Logger) *Executor {
	return &Executor{
		engine:  engine,
		catalog: catalog,
		audit:   audit,
		clock:   time.Now,
		logger:  logger,
	}
}

// Execute authorizes and runs one tool call. confirmed marks that the user
// explicitly approved a confirmation-required call; a denied or
// confirmation-required decision performs zero tool side effects.
func (e *Executor) Execute(ctx context.Context, agent *domain.Agent, call *domain.ToolCall, confirmed bool) domain.ToolResult {
	ctx, span := tracer.StartSpan(ctx, "executor.execute",
		trace.WithAttributes(
			tracer.StringAttr("tool.name", call.Name),
			tracer.StringAttr("agent", agent.Identity()),
			tracer.BoolAttr("confirmed", confirmed),
		),
	)
	defer span.End()

	start := e.clock()

	decision := e.engine.Authorize(agent, call.Name, call.Arguments, confirmed)
	switch decision.Outcome {
	case policy.OutcomeNeedsConfirmation:
		result := domain.ToolResult{
			NeedsConfirmation: true,
			Error:             &domain.ToolError{Code: decision.Code, Message: decision.Reason},
		}
		return e.finish(ctx, span, agent, call, start, result)
	case policy.OutcomeDenied:
		e.logger.Info("tool call denied",
			"tool", call.Name, "agent", agent.Identity(), "code", decision.Code)
		result := domain.ToolResult{
			Error: &domain.ToolError{Code: decision.Code, Message: decision.Reason},
		}
		return e.finish(ctx, span, agent, call, start, result)
	}

	t, err := e.catalog.Get(call.Name)
	if err != nil {
		result := domain.ToolResult{
			Error: &domain.ToolError{Code: domain.ErrorCodeOf(err), Message: err.Error()},
		}
		return e.finish(ctx, span, agent, call, start, result)
	}

	payload, err := e.run(ctx, t, call.Arguments)
	if err != nil {
		result := domain.ToolResult{
			Error: &domain.ToolError{Code: domain.ErrorCodeOf(err), Message: err.Error()},
		}
		return e.finish(ctx, span, agent, call, start, result)
	}

	return e.finish(ctx, span, agent, call, start, domain.ToolResult{OK: true, Result: payload})
}

// run invokes the handler with panic containment. A panicking tool is a
// tool failure, not a runtime crash.
func (e *Executor) run(ctx context.Context, t domain.Tool, args []byte) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool handler panicked",
				"tool", t.Name(), "panic", r, "stack", string(debug.Stack()))
			payload = nil
			err = domain.NewDomainError("Executor.run", domain.ErrToolFailure,
				fmt.Sprintf("handler panicked: %v", r))
		}
	}()
	return t.Execute(ctx, args)
}

// finish stamps timing, writes the audit entry, and returns the result.
// An audit write failure is logged loudly but does not change the tool
// outcome already in hand.
func (e *Executor) finish(ctx context.Context, span trace.Span, agent *domain.Agent, call *domain.ToolCall, start time.Time, result domain.ToolResult) domain.ToolResult {
	elapsed := e.clock().Sub(start).Milliseconds()
	result.Debug = domain.ToolDebug{DurationMS: elapsed, CallID: call.ID}

	entry := domain.AuditEntry{
		TS:         start.UTC(),
		Agent:      agent.Identity(),
		Tool:       call.Name,
		Args:       security.SanitizeArgs(call.Arguments),
		OK:         result.OK,
		DurationMS: elapsed,
	}
	if result.Error != nil {
		entry.Error = result.Error.Message
		entry.Code = result.Error.Code
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logger.Error("audit write failed", "tool", call.Name, "error", err)
	}

	if result.OK {
		tracer.SetOK(span)
	} else if result.Error != nil {
		span.SetAttributes(tracer.StringAttr("error.code", string(result.Error.Code)))
	}
	return result
}
