package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

const schema = `
CREATE TABLE IF NOT EXISTS polls (
    id TEXT PRIMARY KEY,
    variant TEXT NOT NULL,
    ts INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    http_status INTEGER DEFAULT 0,
    item_count INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    error_class TEXT,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_polls_ts ON polls(ts);
CREATE INDEX IF NOT EXISTS idx_polls_variant_ts ON polls(variant, ts);
`

// pruneEvery is how many inserts pass between row-count checks.
const pruneEvery = 100

// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	db      *sql.DB
	maxRows int
	logger  *slog.Logger

	pruneMu sync.Mutex
	inserts int
}

// NewSQLiteStore creates a new SQLite store at the given path.
// It enables WAL mode for better concurrent performance.
func NewSQLiteStore(path string, maxRows int, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SQLiteStore{
		db:      db,
		maxRows: maxRows,
		logger:  logger,
	}, nil
}

// Insert records one poll.
func (s *SQLiteStore) Insert(rec *Record) error {
	prepare(rec)

	_, err := s.db.Exec(`
		INSERT INTO polls (id, variant, ts, outcome, http_status, item_count, duration_ms, error_class, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.Variant, rec.TS, string(rec.Outcome), rec.HTTPStatus,
		rec.ItemCount, rec.DurationMs, nullString(rec.ErrorClass), nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}

	s.maybePrune()
	return nil
}

// List retrieves records newest first.
func (s *SQLiteStore) List(opts ListOptions) ([]Record, error) {
	query := `
		SELECT id, variant, ts, outcome, http_status, item_count, duration_ms, error_class, error
		FROM polls WHERE 1=1
	`
	var args []any

	if opts.Variant != "" {
		query += " AND variant = ?"
		args = append(args, opts.Variant)
	}
	if opts.Outcome != nil {
		query += " AND outcome = ?"
		args = append(args, string(*opts.Outcome))
	}
	if opts.Window > 0 {
		cutoff := time.Now().UnixMilli() - opts.Window.Milliseconds()
		query += " AND ts >= ?"
		args = append(args, cutoff)
	}

	query += " ORDER BY ts DESC, rowid DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r          Record
			outcome    string
			errorClass sql.NullString
			errMsg     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Variant, &r.TS, &outcome, &r.HTTPStatus,
			&r.ItemCount, &r.DurationMs, &errorClass, &errMsg); err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		r.Outcome = Outcome(outcome)
		r.ErrorClass = errorClass.String
		r.Error = errMsg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary aggregates the records of a variant.
func (s *SQLiteStore) Summary(variant string) (*Summary, error) {
	sum := &Summary{Variant: variant}
	var firstTS, lastTS sql.NullInt64
	var done int
	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(CASE WHEN outcome = 'done' THEN 1 ELSE 0 END), 0),
			MIN(ts), MAX(ts)
		FROM polls WHERE variant = ?
	`, variant).Scan(&sum.Polls, &sum.Errors, &done, &firstTS, &lastTS)
	if err != nil {
		return nil, fmt.Errorf("summarize polls: %w", err)
	}
	if sum.Polls == 0 {
		return nil, ErrNotFound
	}
	sum.Done = done == 1
	sum.FirstTS = firstTS.Int64
	sum.LastTS = lastTS.Int64

	err = s.db.QueryRow(`
		SELECT item_count FROM polls
		WHERE variant = ? AND outcome != 'error'
		ORDER BY ts DESC, rowid DESC LIMIT 1
	`, variant).Scan(&sum.LastItemCount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last item count: %w", err)
	}
	return sum, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// maybePrune trims the oldest rows once the table grows past maxRows.
func (s *SQLiteStore) maybePrune() {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	s.inserts++
	if s.inserts%pruneEvery != 0 {
		return
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM polls`).Scan(&count); err != nil {
		s.logger.Error("prune count query failed", "err", err)
		return
	}
	if count <= s.maxRows {
		return
	}

	toDelete := count - s.maxRows
	_, err := s.db.Exec(`
		DELETE FROM polls WHERE id IN (
			SELECT id FROM polls ORDER BY ts ASC, rowid ASC LIMIT ?
		)
	`, toDelete)
	if err != nil {
		s.logger.Error("prune failed", "err", err)
	} else {
		s.logger.Debug("pruned old polls", "deleted", toDelete)
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
