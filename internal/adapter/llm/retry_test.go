package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePlanner returns scripted errors until they run out, then succeeds.
type fakePlanner struct {
	calls int
	errs  []error
}

func (f *fakePlanner) PlanRoute(_ context.Context, _ string, _ []domain.ToolSchema) (*domain.RouteResult, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return domain.RouteReply("ok"), nil
}

func newFastController(inner RoutePlanner, maxRetries int) *RetryController {
	rc := NewRetryController(inner, maxRetries, 0, discard())
	rc.baseDelay = time.Millisecond
	rc.maxDelay = 2 * time.Millisecond
	return rc
}

func TestRetryExhaustsOnPersistentTransientFailure(t *testing.T) {
	inner := &fakePlanner{errs: []error{
		&StatusError{Status: 500},
		&StatusError{Status: 503},
		&StatusError{Status: 429},
		&StatusError{Status: 500},
	}}
	rc := newFastController(inner, 3)

	_, err := rc.PlanRoute(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRetriesExhausted))
	assert.Equal(t, 3, inner.calls, "exactly maxRetries attempts")
}

func TestRetryNonRetryableFailsImmediately(t *testing.T) {
	inner := &fakePlanner{errs: []error{&StatusError{Status: 404, Body: "no route"}}}
	rc := newFastController(inner, 3)

	_, err := rc.PlanRoute(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrRetriesExhausted))
	assert.Equal(t, 1, inner.calls, "a 4xx other than 429 is terminal")
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	inner := &fakePlanner{errs: []error{&StatusError{Status: 502}}}
	rc := newFastController(inner, 3)

	result, err := rc.PlanRoute(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Reply)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryStringStatusIsCoerced(t *testing.T) {
	// Some backends report status as a JSON string; "503" must still retry.
	inner := &fakePlanner{errs: []error{&StatusError{Status: "503"}}}
	rc := newFastController(inner, 3)

	_, err := rc.PlanRoute(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryBackoffRespectsDeadline(t *testing.T) {
	inner := &fakePlanner{errs: []error{
		&StatusError{Status: 500}, &StatusError{Status: 500}, &StatusError{Status: 500},
	}}
	rc := NewRetryController(inner, 3, 0, discard())
	rc.baseDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rc.PlanRoute(ctx, "hi", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, inner.calls, "backoff wait must abort on deadline, not sleep through it")
}

func TestCoerceStatus(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{429, 429},
		{int64(500), 500},
		{float64(503), 503},
		{"502", 502},
		{" 429 ", 429},
		{"not-a-number", 0},
		{nil, 0},
		{true, 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CoerceStatus(tc.in), "input %v", tc.in)
	}
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, Retryable(&StatusError{Status: 429}))
	assert.True(t, Retryable(&StatusError{Status: 500}))
	assert.True(t, Retryable(&StatusError{Status: "500"}))
	assert.False(t, Retryable(&StatusError{Status: 400}))
	assert.False(t, Retryable(&StatusError{Status: 404}))
	assert.False(t, Retryable(errors.New("plain error")))
}
