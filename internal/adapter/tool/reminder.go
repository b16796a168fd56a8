package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"

	"warden/internal/domain"
	"warden/internal/store"
)

// ReminderTool schedules one-shot reminders. Records go to the append-only
// store; the ReminderScheduler sweeps for due ones on a cron tick.
type ReminderTool struct {
	store  *store.JSONL[domain.ReminderRecord]
	clock  func() time.Time
	logger *slog.Logger
}

// NewReminderTool creates the reminder tool.
func NewReminderTool(s *store.JSONL[domain.ReminderRecord], logger *slog.Logger) *ReminderTool {
	return &ReminderTool{store: s, clock: time.Now, logger: logger}
}

func (t *ReminderTool) Name() string        { return "remind" }
func (t *ReminderTool) Description() string { return "Schedule a one-shot reminder" }
func (t *ReminderTool) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityStore, domain.CapabilityScheduler}
}

func (t *ReminderTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"message": {"type": "string", "minLength": 1, "description": "What to be reminded of"},
				"in_minutes": {"type": "integer", "minimum": 1, "description": "Minutes from now"},
				"at": {"type": "string", "description": "Absolute time, RFC 3339 (alternative to in_minutes)"}
			},
			"required": ["message"],
			"additionalProperties": false
		}`),
	}
}

type reminderParams struct {
	Message   string `json:"message"`
	InMinutes int    `json:"in_minutes,omitempty"`
	At        string `json:"at,omitempty"`
}

func (t *ReminderTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return Execute(ctx, "tool.remind", t.logger, params,
		func(_ context.Context, _ trace.Span, p reminderParams) (any, error) {
			var at time.Time
			switch {
			case p.InMinutes > 0:
				at = t.clock().Add(time.Duration(p.InMinutes) * time.Minute)
			case p.At != "":
				parsed, err := time.Parse(time.RFC3339, p.At)
				if err != nil {
					return nil, domain.NewDomainError("ReminderTool", domain.ErrInvalidInput,
						fmt.Sprintf("invalid time %q: %v", p.At, err))
				}
				at = parsed
			default:
				return nil, domain.NewDomainError("ReminderTool", domain.ErrInvalidInput,
					"one of 'in_minutes' or 'at' is required")
			}

			rec := domain.ReminderRecord{
				ID:        ulid.Make().String(),
				Message:   strings.TrimSpace(p.Message),
				At:        at.UTC(),
				CreatedAt: t.clock().UTC(),
			}
			if err := t.store.Append(rec); err != nil {
				return nil, domain.WrapOp("append reminder", err)
			}
			t.logger.Debug("reminder scheduled", "id", rec.ID, "at", rec.At)
			return rec, nil
		},
	)
}

// ReminderScheduler fires due reminders. It runs a cron sweep every minute
// and marks fired reminders through read-modify-write-all so a crash
// between firing and marking re-fires rather than losing the reminder.
type ReminderScheduler struct {
	cron   *cron.Cron
	store  *store.JSONL[domain.ReminderRecord]
	notify func(domain.ReminderRecord)
	clock  func() time.Time
	logger *slog.Logger
}

// NewReminderScheduler creates a scheduler delivering via notify.
func NewReminderScheduler(s *store.JSONL[domain.ReminderRecord], notify func(domain.ReminderRecord), logger *slog.Logger) (*ReminderScheduler, error) {
	sched := &ReminderScheduler{
		cron:   cron.New(),
		store:  s,
		notify: notify,
		clock:  time.Now,
		logger: logger,
	}
	if _, err := sched.cron.AddFunc("@every 1m", sched.FireDue); err != nil {
		return nil, fmt.Errorf("schedule reminder sweep: %w", err)
	}
	return sched, nil
}

// Start begins the sweep loop.
func (s *ReminderScheduler) Start() { s.cron.Start() }

// Stop halts the sweep loop and waits for a running sweep to finish.
func (s *ReminderScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// FireDue delivers and marks every due, unfired reminder. Exported so the
// CLI can force a sweep.
func (s *ReminderScheduler) FireDue() {
	now := s.clock()
	var fired []domain.ReminderRecord

	err := s.store.Update(func(records []domain.ReminderRecord) ([]domain.ReminderRecord, error) {
		for i := range records {
			if !records[i].Fired && !records[i].At.After(now) {
				records[i].Fired = true
				fired = append(fired, records[i])
			}
		}
		return records, nil
	})
	if err != nil {
		s.logger.Warn("reminder sweep failed", "error", err)
		return
	}

	for _, rec := range fired {
		s.notify(rec)
	}
}
