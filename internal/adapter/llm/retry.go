package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"warden/internal/domain"
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 10 * time.Second
)

// RetryController wraps a RoutePlanner with bounded exponential backoff for
// transient upstream failures (429 and 5xx). Non-retryable statuses fail on
// the first attempt. Nothing else in the pipeline is retried: deterministic
// stages and the execution engine succeed or fail definitively.
type RetryController struct {
	inner      RoutePlanner
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*domain.RouteResult]
	logger     *slog.Logger
}

// NewRetryController wraps inner with retry, a request rate limit
// (ratePerMin; 0 disables), and a circuit breaker.
func NewRetryController(inner RoutePlanner, maxRetries, ratePerMin int, logger *slog.Logger) *RetryController {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var limiter *rate.Limiter
	if ratePerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMin)), ratePerMin)
	}
	breaker := gobreaker.NewCircuitBreaker[*domain.RouteResult](gobreaker.Settings{
		Name: "route-planner",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &RetryController{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
		limiter:    limiter,
		breaker:    breaker,
		logger:     logger,
	}
}

// PlanRoute attempts the wrapped planner up to maxRetries times, backing
// off between attempts. The backoff wait respects the caller's deadline.
func (r *RetryController) PlanRoute(ctx context.Context, input string, tools []domain.ToolSchema) (*domain.RouteResult, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, domain.WrapOp("planner rate limit", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		result, err := r.breaker.Execute(func() (*domain.RouteResult, error) {
			return r.inner.PlanRoute(ctx, input, tools)
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewDomainError("RetryController.PlanRoute", domain.ErrUpstream, err.Error())
		}
		if !Retryable(err) {
			return nil, err
		}
		r.logger.Warn("planner call failed, will retry",
			"attempt", attempt+1, "max", r.maxRetries, "error", err)
	}

	return nil, domain.NewDomainError("RetryController.PlanRoute", domain.ErrRetriesExhausted, lastErr.Error())
}

// Retryable reports whether err is a transient upstream condition: HTTP
// 429 or any 5xx, after coercing numeric-or-string status values.
func Retryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	code := se.StatusCode()
	return code == 429 || code >= 500
}

// backoff computes exponential backoff with 0-25% jitter, capped.
func (r *RetryController) backoff(attempt int) time.Duration {
	delay := r.baseDelay * time.Duration(1<<uint(attempt))
	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func (r *RetryController) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
