// Package usecase wires the router and the execution engine: the path
// from free text to an audited tool invocation.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"warden/internal/adapter/llm"
	"warden/internal/domain"
	"warden/internal/infra/tracer"
	"warden/internal/policy"
)

// Router turns user input into a route. Stages run in a fixed order, each
// short-circuiting the next: explicit fast-path prefixes, deterministic
// heuristics, then the model-backed planner. With no planner configured the
// last stage degrades to a plain reply, never an error.
type Router struct {
	scope       *toolScope
	planner     llm.RoutePlanner // nil = deterministic only
	maxInputLen int
	clock       func() time.Time
	logger      *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithPlanner enables the model-backed fallback stage.
func WithPlanner(p llm.RoutePlanner) RouterOption {
	return func(r *Router) { r.planner = p }
}

// WithMaxInputLen overrides the input length ceiling.
func WithMaxInputLen(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.maxInputLen = n
		}
	}
}

// NewRouter creates a router over the given catalog and permission engine.
// scopeCacheSize bounds the per-agent tool filter cache.
func NewRouter(catalog domain.ToolCatalog, engine *policy.Engine, scopeCacheSize int, logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		scope:       newToolScope(catalog, engine, scopeCacheSize),
		maxInputLen: 8192,
		clock:       time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InvalidateScope drops the per-agent tool filter cache. Call on catalog
// or policy changes.
func (r *Router) InvalidateScope() { r.scope.Invalidate() }

// Route resolves input to a reply, a tool call, or a structured error. It
// never proposes a tool the permission engine would not consider for the
// agent, and it never panics on malformed input.
func (r *Router) Route(ctx context.Context, agent *domain.Agent, input string) *domain.RouteResult {
	ctx, span := tracer.StartSpan(ctx, "router.route",
		trace.WithAttributes(tracer.StringAttr("agent", agent.Identity())),
	)
	defer span.End()

	input = strings.TrimSpace(input)
	if input == "" {
		return domain.RouteError(domain.NewDomainError("router", domain.ErrInvalidInput, "empty input"))
	}
	if len(input) > r.maxInputLen {
		return domain.RouteError(domain.NewDomainError("router", domain.ErrInvalidInput,
			fmt.Sprintf("input exceeds %d bytes", r.maxInputLen)))
	}

	if result := fastpath(input); result != nil {
		span.SetAttributes(tracer.StringAttr("router.stage", "fastpath"))
		return result
	}

	if result := heuristics(input, r.clock()); result != nil {
		span.SetAttributes(tracer.StringAttr("router.stage", "heuristics"))
		return result
	}

	if r.planner == nil {
		span.SetAttributes(tracer.StringAttr("router.stage", "none"))
		return domain.RouteReply("I didn't recognize that. Try an explicit form like 'remember: ...', 'run: ...', or 'list tasks'.")
	}

	span.SetAttributes(tracer.StringAttr("router.stage", "planner"))
	schemas := r.scope.SchemasFor(agent)
	result, err := r.planner.PlanRoute(ctx, input, schemas)
	if err != nil {
		r.logger.Warn("planner stage failed", "error", err)
		return domain.RouteError(err)
	}
	return result
}
