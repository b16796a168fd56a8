package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"warden/internal/domain"
	"warden/internal/store"
)

// TasksTool manages the task list over the append-only store. Adding a
// task appends one record; marking a task done rewrites the file through
// read-modify-write-all, never an in-place edit.
type TasksTool struct {
	store  *store.JSONL[domain.TaskRecord]
	clock  func() time.Time
	logger *slog.Logger
}

// NewTasksTool creates the task tool over the given store.
func NewTasksTool(s *store.JSONL[domain.TaskRecord], logger *slog.Logger) *TasksTool {
	return &TasksTool{store: s, clock: time.Now, logger: logger}
}

func (t *TasksTool) Name() string        { return "tasks" }
func (t *TasksTool) Description() string { return "Add, list, and complete tasks" }
func (t *TasksTool) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityStore}
}

func (t *TasksTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {"type": "string", "enum": ["add", "list", "done"], "description": "The task operation"},
				"title": {"type": "string", "description": "Task title (add action)"},
				"due": {"type": "string", "description": "Due time, RFC 3339 (add action, optional)"},
				"priority": {"type": "integer", "minimum": 0, "maximum": 3, "description": "1 highest .. 3 lowest, 0 unset"},
				"id": {"type": "string", "description": "Task ID or unique prefix (done action)"},
				"include_done": {"type": "boolean", "description": "Include completed tasks (list action)"}
			},
			"required": ["action"],
			"additionalProperties": false
		}`),
	}
}

type tasksParams struct {
	Action      string `json:"action"`
	Title       string `json:"title,omitempty"`
	Due         string `json:"due,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	ID          string `json:"id,omitempty"`
	IncludeDone bool   `json:"include_done,omitempty"`
}

func (t *TasksTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return Execute(ctx, "tool.tasks", t.logger, params,
		Dispatch(func(p tasksParams) string { return p.Action }, ActionMap[tasksParams]{
			"add":  t.add,
			"list": t.list,
			"done": t.done,
		}),
	)
}

func (t *TasksTool) add(_ context.Context, p tasksParams) (any, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, domain.NewDomainError("TasksTool.add", domain.ErrInvalidInput, "'title' is required")
	}

	rec := domain.TaskRecord{
		ID:        ulid.Make().String(),
		Title:     title,
		Priority:  domain.TaskPriority(p.Priority),
		CreatedAt: t.clock().UTC(),
	}
	if p.Due != "" {
		due, err := time.Parse(time.RFC3339, p.Due)
		if err != nil {
			return nil, domain.NewDomainError("TasksTool.add", domain.ErrInvalidInput,
				fmt.Sprintf("invalid due time %q: %v", p.Due, err))
		}
		rec.Due = &due
	}

	if err := t.store.Append(rec); err != nil {
		return nil, domain.WrapOp("append task", err)
	}
	t.logger.Debug("task added", "id", rec.ID)
	return rec, nil
}

func (t *TasksTool) list(_ context.Context, p tasksParams) (any, error) {
	records, err := t.store.ReadAll()
	if err != nil {
		return nil, domain.WrapOp("read tasks", err)
	}

	out := make([]domain.TaskRecord, 0, len(records))
	for _, rec := range records {
		if rec.Done && !p.IncludeDone {
			continue
		}
		out = append(out, rec)
	}
	return map[string]any{"tasks": out, "count": len(out)}, nil
}

func (t *TasksTool) done(_ context.Context, p tasksParams) (any, error) {
	if p.ID == "" {
		return nil, domain.NewDomainError("TasksTool.done", domain.ErrInvalidInput, "'id' is required")
	}

	var completed *domain.TaskRecord
	err := t.store.Update(func(records []domain.TaskRecord) ([]domain.TaskRecord, error) {
		idx := -1
		for i, rec := range records {
			if rec.ID == p.ID || strings.HasPrefix(rec.ID, p.ID) {
				if idx != -1 {
					return nil, domain.NewDomainError("TasksTool.done", domain.ErrInvalidInput,
						fmt.Sprintf("id prefix %q is ambiguous", p.ID))
				}
				idx = i
			}
		}
		if idx == -1 {
			return nil, domain.NewDomainError("TasksTool.done", domain.ErrTaskNotFound, p.ID)
		}

		now := t.clock().UTC()
		records[idx].Done = true
		records[idx].DoneAt = &now
		completed = &records[idx]
		return records, nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Debug("task completed", "id", completed.ID)
	return completed, nil
}
