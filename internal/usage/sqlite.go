package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrSinkClosed = errors.New("usage: sink is closed")

// SQLiteSink persists session records to a local SQLite database: one row
// per session plus a per-day rollup.
type SQLiteSink struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteSink opens (or creates) the database and applies the schema.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stream_logs (
		id            TEXT PRIMARY KEY,
		request_id    TEXT NOT NULL,
		model         TEXT NOT NULL,
		provider      TEXT NOT NULL,
		input_tokens  INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		est_input     INTEGER DEFAULT 0,
		outcome       TEXT NOT NULL,
		error_kind    TEXT,
		duration_ms   INTEGER,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS usage_daily (
		date          TEXT NOT NULL,
		model         TEXT NOT NULL,
		provider      TEXT NOT NULL,
		request_count INTEGER DEFAULT 0,
		input_tokens  INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		error_count   INTEGER DEFAULT 0,
		PRIMARY KEY (date, model)
	);

	CREATE INDEX IF NOT EXISTS idx_stream_logs_created ON stream_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_stream_logs_model ON stream_logs(model);
	CREATE INDEX IF NOT EXISTS idx_usage_daily_date ON usage_daily(date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts the session row and folds it into the daily rollup.
func (s *SQLiteSink) Record(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	now := time.Now().UTC()
	id := "log_" + uuid.New().String()[:8]

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_logs (id, request_id, model, provider,
			input_tokens, output_tokens, est_input, outcome, error_kind,
			duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, rec.RequestID, rec.Model, rec.Provider,
		rec.InputTokens, rec.OutputTokens, rec.EstimatedInputTokens,
		rec.Outcome, nullString(rec.ErrorKind), rec.DurationMs, now)
	if err != nil {
		return err
	}

	errCount := 0
	if rec.Outcome == OutcomeFailed {
		errCount = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO usage_daily (date, model, provider, request_count,
			input_tokens, output_tokens, error_count)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(date, model) DO UPDATE SET
			request_count = request_count + 1,
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			error_count = error_count + excluded.error_count
	`, now.Format("2006-01-02"), rec.Model, rec.Provider,
		rec.InputTokens, rec.OutputTokens, errCount)

	return err
}

// DailyUsage is one rollup row.
type DailyUsage struct {
	Date         string
	Model        string
	Provider     string
	RequestCount int
	InputTokens  int
	OutputTokens int
	ErrorCount   int
}

// Daily returns rollup rows for an inclusive date range (YYYY-MM-DD).
func (s *SQLiteSink) Daily(ctx context.Context, startDate, endDate string) ([]*DailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSinkClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, model, provider, request_count,
			input_tokens, output_tokens, error_count
		FROM usage_daily
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, model ASC
	`, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.Model, &u.Provider, &u.RequestCount,
			&u.InputTokens, &u.OutputTokens, &u.ErrorCount); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
