package domain

import "time"

// TaskPriority is 1 (highest) to 3 (lowest). 0 means unset.
type TaskPriority int

// TaskRecord is one durable task. Marking a task done writes a new record
// state via read-modify-write-all, never an in-place edit.
type TaskRecord struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Due       *time.Time   `json:"due,omitempty"`
	Priority  TaskPriority `json:"priority,omitempty"`
	Done      bool         `json:"done"`
	CreatedAt time.Time    `json:"created_at"`
	DoneAt    *time.Time   `json:"done_at,omitempty"`
}

// MemoryRecord is one remembered item.
type MemoryRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ReminderRecord is one scheduled reminder.
type ReminderRecord struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
	Fired     bool      `json:"fired"`
	CreatedAt time.Time `json:"created_at"`
}
