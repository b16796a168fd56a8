package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"warden/internal/domain"
	"warden/internal/store"
)

// MemoryKeeper backs the remember/recall tools: durable JSONL storage with
// a SQLite keyword index on the side. The index is advisory — if it fails,
// recall falls back to scanning the store.
type MemoryKeeper struct {
	store  *store.JSONL[domain.MemoryRecord]
	index  *MemoryIndex // nil = no index, scan-only
	clock  func() time.Time
	logger *slog.Logger
}

// NewMemoryKeeper creates a keeper and rebuilds the index from the store
// so the two can never drift across restarts.
func NewMemoryKeeper(s *store.JSONL[domain.MemoryRecord], index *MemoryIndex, logger *slog.Logger) (*MemoryKeeper, error) {
	k := &MemoryKeeper{store: s, index: index, clock: time.Now, logger: logger}
	if index != nil {
		records, err := s.ReadAll()
		if err != nil {
			return nil, domain.WrapOp("read memories", err)
		}
		if err := index.Rebuild(records); err != nil {
			logger.Warn("memory index rebuild failed, falling back to scans", "error", err)
			k.index = nil
		}
	}
	return k, nil
}

// Remember durably stores one item. An index failure is logged, not
// fatal: the JSONL store is the source of truth.
func (k *MemoryKeeper) Remember(text string) (domain.MemoryRecord, error) {
	rec := domain.MemoryRecord{
		ID:        ulid.Make().String(),
		Text:      text,
		CreatedAt: k.clock().UTC(),
	}
	if err := k.store.Append(rec); err != nil {
		return domain.MemoryRecord{}, domain.NewDomainError("MemoryKeeper.Remember", domain.ErrMemoryStore, err.Error())
	}
	if k.index != nil {
		if err := k.index.Insert(rec); err != nil {
			k.logger.Warn("memory index insert failed", "id", rec.ID, "error", err)
		}
	}
	return rec, nil
}

// Recall returns up to limit matching records, newest first.
func (k *MemoryKeeper) Recall(query string, limit int) ([]domain.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	records, err := k.store.ReadAll()
	if err != nil {
		return nil, domain.NewDomainError("MemoryKeeper.Recall", domain.ErrMemoryStore, err.Error())
	}

	if k.index != nil {
		ids, err := k.index.Search(query, limit)
		if err == nil {
			byID := make(map[string]domain.MemoryRecord, len(records))
			for _, rec := range records {
				byID[rec.ID] = rec
			}
			out := make([]domain.MemoryRecord, 0, len(ids))
			for _, id := range ids {
				if rec, ok := byID[id]; ok {
					out = append(out, rec)
				}
			}
			return out, nil
		}
		k.logger.Warn("memory index search failed, scanning store", "error", err)
	}

	// Fallback: newest-first substring scan of the store.
	lower := strings.ToLower(query)
	var out []domain.MemoryRecord
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(strings.ToLower(records[i].Text), lower) {
			out = append(out, records[i])
		}
	}
	return out, nil
}

// RememberTool stores one item in memory.
type RememberTool struct {
	keeper *MemoryKeeper
	logger *slog.Logger
}

// NewRememberTool creates the remember tool.
func NewRememberTool(keeper *MemoryKeeper, logger *slog.Logger) *RememberTool {
	return &RememberTool{keeper: keeper, logger: logger}
}

func (t *RememberTool) Name() string        { return "remember" }
func (t *RememberTool) Description() string { return "Store a piece of text in memory" }
func (t *RememberTool) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityStore}
}

func (t *RememberTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {"type": "string", "minLength": 1, "description": "The text to remember"}
			},
			"required": ["text"],
			"additionalProperties": false
		}`),
	}
}

type rememberParams struct {
	Text string `json:"text"`
}

func (t *RememberTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return Execute(ctx, "tool.remember", t.logger, params,
		func(_ context.Context, _ trace.Span, p rememberParams) (any, error) {
			return t.keeper.Remember(p.Text)
		},
	)
}

// RecallTool searches memory.
type RecallTool struct {
	keeper *MemoryKeeper
	logger *slog.Logger
}

// NewRecallTool creates the recall tool.
func NewRecallTool(keeper *MemoryKeeper, logger *slog.Logger) *RecallTool {
	return &RecallTool{keeper: keeper, logger: logger}
}

func (t *RecallTool) Name() string        { return "recall" }
func (t *RecallTool) Description() string { return "Search remembered items" }
func (t *RecallTool) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityStore}
}

func (t *RecallTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1, "description": "Search text"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 100, "description": "Max results (default 10)"}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
	}
}

type recallParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (t *RecallTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return Execute(ctx, "tool.recall", t.logger, params,
		func(_ context.Context, _ trace.Span, p recallParams) (any, error) {
			records, err := t.keeper.Recall(p.Query, p.Limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"matches": records, "count": len(records)}, nil
		},
	)
}
