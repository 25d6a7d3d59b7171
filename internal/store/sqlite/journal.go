// Package sqlite persists the sync journal: an append-only record of every
// progress delivery attempt, served back through the history API.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/id"
)

//go:embed schema.sql
var schemaSQL string

// Delivery statuses recorded per attempt.
const (
	StatusDelivered = "delivered"
	StatusStale     = "stale"
)

// Entry is one journaled sync attempt.
type Entry struct {
	ID           string    `json:"id"`
	BookID       string    `json:"book_id"`
	Reason       string    `json:"reason"`
	Source       string    `json:"source"`
	TimestampMs  int64     `json:"timestamp_ms"`
	Href         string    `json:"href"`
	Fragment     string    `json:"fragment,omitempty"`
	BookFraction *float64  `json:"book_fraction,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Journal is a SQLite-backed sync journal.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the journal at the given path, configuring WAL mode and
// running the schema migration.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "open journal db")
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, errors.CodeInternal, "exec %q", pragma)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeInternal, "exec journal schema")
	}

	return &Journal{db: db, logger: logger.With("component", "journal")}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one attempt. A zero ID or CreatedAt is filled in.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		generated, err := id.Generate("syn")
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "generate journal id")
		}
		e.ID = generated
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sync_journal (
			id, book_id, reason, source, timestamp_ms, href, fragment, book_fraction, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.BookID,
		e.Reason,
		e.Source,
		e.TimestampMs,
		e.Href,
		nullString(e.Fragment),
		nullFloat(e.BookFraction),
		e.Status,
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "insert journal entry")
	}
	return nil
}

// ListByBook returns the most recent attempts for a book, newest first.
func (j *Journal) ListByBook(ctx context.Context, bookID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, book_id, reason, source, timestamp_ms, href, fragment, book_fraction, status, created_at
		FROM sync_journal
		WHERE book_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, bookID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "query journal")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "scan journal entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "iterate journal")
	}
	return entries, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		e         Entry
		fragment  sql.NullString
		fraction  sql.NullFloat64
		createdAt string
	)
	err := scanner.Scan(
		&e.ID,
		&e.BookID,
		&e.Reason,
		&e.Source,
		&e.TimestampMs,
		&e.Href,
		&fragment,
		&fraction,
		&e.Status,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	if fragment.Valid {
		e.Fragment = fragment.String
	}
	if fraction.Valid {
		e.BookFraction = &fraction.Float64
	}
	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
