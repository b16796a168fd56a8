// Package tool contains the tool registry and the tool handlers. Handlers
// receive capability-scoped collaborators (sandbox resolver, command gate,
// typed stores) at construction; none of them touch raw filesystem or
// process APIs directly.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"warden/internal/domain"
	"warden/internal/infra/tracer"
)

// Execute is the standard handler pipeline: parse params, start a span,
// run the handler, marshal the payload. Schema validation has already
// happened at the permission engine; the parse here only maps JSON onto
// the typed params struct.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (json.RawMessage, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	if len(rawParams) == 0 {
		rawParams = json.RawMessage("{}")
	}
	var p P
	if err := json.Unmarshal(rawParams, &p); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError(spanName, domain.ErrInvalidInput,
			fmt.Sprintf("invalid params: %v", err))
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err)
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	tracer.SetOK(span)
	return payload, nil
}

// ActionHandler handles a single action for an action-dispatched tool.
type ActionHandler[P any] func(ctx context.Context, p P) (any, error)

// ActionMap maps action names to their handlers.
type ActionMap[P any] map[string]ActionHandler[P]

// Dispatch builds an Execute handler that routes by action name.
func Dispatch[P any](
	getAction func(P) string,
	actions ActionMap[P],
) func(ctx context.Context, span trace.Span, p P) (any, error) {
	validActions := make([]string, 0, len(actions))
	for name := range actions {
		validActions = append(validActions, name)
	}
	sort.Strings(validActions)

	return func(ctx context.Context, span trace.Span, p P) (any, error) {
		action := getAction(p)
		span.SetAttributes(tracer.StringAttr("tool.action", action))

		handler, ok := actions[action]
		if !ok {
			return nil, BadAction(action, validActions...)
		}
		return handler(ctx, p)
	}
}

// BadAction is the standard unknown-action validation error.
func BadAction(got string, valid ...string) error {
	return domain.NewDomainError("tool.dispatch", domain.ErrInvalidInput,
		fmt.Sprintf("unknown action %q (want: %s)", got, strings.Join(valid, ", ")))
}
