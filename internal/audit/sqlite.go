package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// atLayout is fixed-width so that text order of the at column is time order.
const atLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) a SQLite database and runs migrations.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit journal: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit journal: wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit journal: busy timeout: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS journal (
			id        TEXT PRIMARY KEY,
			kind      TEXT NOT NULL,
			bot_key   TEXT NOT NULL,
			user_id   TEXT NOT NULL DEFAULT '',
			ticket_id TEXT NOT NULL DEFAULT '',
			detail    TEXT NOT NULL DEFAULT '',
			at        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_journal_pair ON journal(bot_key, user_id);
		CREATE INDEX IF NOT EXISTS idx_journal_ticket ON journal(ticket_id);
		CREATE INDEX IF NOT EXISTS idx_journal_at ON journal(at);
	`)
	if err != nil {
		return fmt.Errorf("audit journal: migrate: %w", err)
	}
	return nil
}

// Record appends e. Missing ID and At are filled in.
func (j *SQLiteJournal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO journal (id, kind, bot_key, user_id, ticket_id, detail, at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.BotKey, e.UserID, e.TicketID, e.Detail, e.At.UTC().Format(atLayout))
	if err != nil {
		return fmt.Errorf("audit journal: record: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (j *SQLiteJournal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := "SELECT id, kind, bot_key, user_id, ticket_id, detail, at FROM journal WHERE 1=1"
	var args []any

	if filter.BotKey != "" {
		query += " AND bot_key = ?"
		args = append(args, filter.BotKey)
	}
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.TicketID != "" {
		query += " AND ticket_id = ?"
		args = append(args, filter.TicketID)
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	query += " ORDER BY at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit journal: list: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var kind, at string
		if err := rows.Scan(&e.ID, &kind, &e.BotKey, &e.UserID, &e.TicketID, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("audit journal: list scan: %w", err)
		}
		e.Kind = Kind(kind)
		e.At, _ = time.Parse(atLayout, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
