package tool

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"warden/internal/domain"
)

// MemoryIndex is a keyword search index over memory records, kept in
// SQLite. The JSONL store remains the durability source of truth; the
// index is rebuilt from it on open, so losing the index file loses
// nothing.
type MemoryIndex struct {
	db *sql.DB
}

// OpenMemoryIndex opens (or creates) the index database at path.
func OpenMemoryIndex(path string) (*MemoryIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory index: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create memories table: %w", err)
	}
	return &MemoryIndex{db: db}, nil
}

// Rebuild replaces the index contents with the given records.
func (ix *MemoryIndex) Rebuild(records []domain.MemoryRecord) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM memories`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	for _, rec := range records {
		if _, err := tx.Exec(
			`INSERT INTO memories (id, text, created_at) VALUES (?, ?, ?)`,
			rec.ID, rec.Text, rec.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
		); err != nil {
			return fmt.Errorf("index record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Insert adds one record to the index.
func (ix *MemoryIndex) Insert(rec domain.MemoryRecord) error {
	_, err := ix.db.Exec(
		`INSERT OR REPLACE INTO memories (id, text, created_at) VALUES (?, ?, ?)`,
		rec.ID, rec.Text, rec.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
	)
	if err != nil {
		return domain.NewDomainError("MemoryIndex.Insert", domain.ErrMemoryStore, err.Error())
	}
	return nil
}

// Search returns up to limit record IDs whose text matches the query,
// newest first. Ordering is by the ULID id, which sorts chronologically;
// the RFC 3339 created_at strings do not (mixed fractional precision
// breaks lexicographic order).
func (ix *MemoryIndex) Search(query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := ix.db.Query(
		`SELECT id FROM memories WHERE text LIKE ? ESCAPE '\' ORDER BY id DESC LIMIT ?`,
		pattern, limit,
	)
	if err != nil {
		return nil, domain.NewDomainError("MemoryIndex.Search", domain.ErrMemoryStore, err.Error())
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewDomainError("MemoryIndex.Search", domain.ErrMemoryStore, err.Error())
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// Close closes the underlying database.
func (ix *MemoryIndex) Close() error { return ix.db.Close() }
