package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signvault/ledger"
	"signvault/timestamps"
)

// OpenSQLite opens a SQLite database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS downloads (
			uuid TEXT PRIMARY KEY,
			original_name TEXT NOT NULL DEFAULT '',
			downloaded_at TEXT,
			last_signature TEXT,
			last_signature_source TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS signatures (
			uuid TEXT PRIMARY KEY,
			signed_at TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS refresh_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL,
			enqueued_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SQLite stores the ledger, signature times, and refresh queue in one database.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	poll   time.Duration
}

// NewSQLite wraps a migrated database.
func NewSQLite(db *sql.DB, logger *slog.Logger) *SQLite {
	return &SQLite{db: db, logger: logger, poll: queuePollInterval}
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, ok := timestamps.Parse(s.String)
	if !ok {
		return nil
	}
	return &t
}

// Load returns every ledger entry.
func (s *SQLite) Load(ctx context.Context) (map[string]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT uuid, original_name, downloaded_at, last_signature, last_signature_source FROM downloads")
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make(map[string]ledger.Entry)
	for rows.Next() {
		var (
			e                  ledger.Entry
			downloaded, signed sql.NullString
		)
		if err := rows.Scan(&e.DocumentID, &e.OriginalName, &downloaded, &signed, &e.LastSignatureSource); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		e.DownloadedAt = parseTime(downloaded)
		e.LastSignature = parseTime(signed)
		entries[e.DocumentID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Put writes one ledger entry, replacing any previous one.
func (s *SQLite) Put(ctx context.Context, e ledger.Entry) error {
	if e.DocumentID == "" {
		return errors.New("empty document id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (uuid, original_name, downloaded_at, last_signature, last_signature_source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			original_name = excluded.original_name,
			downloaded_at = excluded.downloaded_at,
			last_signature = excluded.last_signature,
			last_signature_source = excluded.last_signature_source`,
		e.DocumentID, e.OriginalName, formatTime(e.DownloadedAt), formatTime(e.LastSignature), e.LastSignatureSource,
	)
	if err != nil {
		return fmt.Errorf("upsert download: %w", err)
	}
	return nil
}

// GetSignature returns the stored signature time for id.
func (s *SQLite) GetSignature(ctx context.Context, id string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT signed_at FROM signatures WHERE uuid = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query signature: %w", err)
	}
	t, ok := timestamps.Parse(raw)
	return t, ok, nil
}

// SetSignature stores the signature time for id.
func (s *SQLite) SetSignature(ctx context.Context, id string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signatures (uuid, signed_at) VALUES (?, ?)
		ON CONFLICT(uuid) DO UPDATE SET signed_at = excluded.signed_at, updated_at = CURRENT_TIMESTAMP`,
		id, t.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert signature: %w", err)
	}
	return nil
}

// Push appends ids to the refresh queue.
func (s *SQLite) Push(ctx context.Context, ids ...string) (int, error) {
	n := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO refresh_queue (uuid) VALUES (?)", id); err != nil {
			return n, fmt.Errorf("enqueue %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

// Pop claims the oldest queued id, polling until timeout.
func (s *SQLite) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		id, ok, err := s.claim(ctx)
		if err != nil || ok {
			return id, ok, err
		}

		wait := min(s.poll, time.Until(deadline))
		if wait <= 0 {
			return "", false, nil
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *SQLite) claim(ctx context.Context) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin claim: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		rowID int64
		id    string
	)
	err = tx.QueryRowContext(ctx, "SELECT id, uuid FROM refresh_queue ORDER BY id LIMIT 1").Scan(&rowID, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select queue head: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM refresh_queue WHERE id = ?", rowID)
	if err != nil {
		return "", false, fmt.Errorf("delete queue head: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return "", false, nil
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit claim: %w", err)
	}
	return id, true, nil
}
