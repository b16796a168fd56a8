// Package llm contains the model-backed router stage: a route planner
// client plus the retry controller that wraps it. Deterministic router
// stages never go through this package.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"warden/internal/domain"
)

// maxResponseBody bounds what we read back from the planner API.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// RoutePlanner turns free text plus the permitted tool set into a route.
// The tool set passed in MUST be the permission-engine-filtered set for the
// requesting agent; the planner proposes only from what it is given.
type RoutePlanner interface {
	PlanRoute(ctx context.Context, input string, tools []domain.ToolSchema) (*domain.RouteResult, error)
}

// StatusError is an upstream failure carrying the HTTP-like status. Some
// backends report status as a JSON number, others as a string; Status holds
// whichever arrived and StatusCode coerces it before classification.
type StatusError struct {
	Status any
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("planner API error %v: %s", e.Status, e.Body)
}

// StatusCode returns the numeric status, or 0 if it cannot be coerced.
func (e *StatusError) StatusCode() int {
	return CoerceStatus(e.Status)
}

// CoerceStatus converts a numeric-or-string status value to an int.
func CoerceStatus(v any) int {
	switch s := v.(type) {
	case int:
		return s
	case int64:
		return int(s)
	case float64:
		return int(s)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// HTTPPlanner is a RoutePlanner over a JSON HTTP API.
type HTTPPlanner struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPPlanner creates a planner client. apiKey may be empty for
// unauthenticated local backends.
func NewHTTPPlanner(baseURL, model, apiKey string, client *http.Client, logger *slog.Logger) *HTTPPlanner {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPlanner{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  client,
		logger:  logger,
	}
}

type planRequest struct {
	Model string              `json:"model"`
	Input string              `json:"input"`
	Tools []domain.ToolSchema `json:"tools"`
}

type planResponse struct {
	Mode     string           `json:"mode"`
	ToolCall *domain.ToolCall `json:"tool_call"`
	Reply    string           `json:"reply"`
	Error    *struct {
		Status  any    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// PlanRoute posts the input and permitted tool schemas to the backend and
// decodes the proposed route. Upstream failures come back as *StatusError
// so the retry controller can classify them.
func (p *HTTPPlanner) PlanRoute(ctx context.Context, input string, tools []domain.ToolSchema) (*domain.RouteResult, error) {
	body, err := json.Marshal(planRequest{Model: p.model, Input: input, Tools: tools})
	if err != nil {
		return nil, fmt.Errorf("marshal plan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/route", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var pr planResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, fmt.Errorf("decode plan response: %w", err)
	}
	if pr.Error != nil {
		// Some backends put transient failures in the body with a 200 wrapper.
		return nil, &StatusError{Status: pr.Error.Status, Body: pr.Error.Message}
	}

	switch pr.Mode {
	case string(domain.RouteModeToolCall):
		if pr.ToolCall == nil || pr.ToolCall.Name == "" {
			return nil, fmt.Errorf("planner returned tool_call mode without a tool call")
		}
		p.logger.Debug("planner proposed tool call", "tool", pr.ToolCall.Name)
		return domain.RouteCall(pr.ToolCall), nil
	case string(domain.RouteModeReply):
		return domain.RouteReply(pr.Reply), nil
	default:
		return nil, fmt.Errorf("planner returned unknown mode %q", pr.Mode)
	}
}
