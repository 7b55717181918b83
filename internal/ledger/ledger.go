// Package ledger keeps an append-only SQLite log of judge calls so spend and
// error rates can be audited across runs.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/signalnine/triage/internal/classify"
	"github.com/signalnine/triage/internal/pricing"
	"github.com/signalnine/triage/internal/result"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// DefaultFile is created in the output directory when the ledger is enabled.
const DefaultFile = "judge_calls.db"

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	config        TEXT NOT NULL,
	task_id       INTEGER NOT NULL,
	attempt       INTEGER NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd      REAL NOT NULL,
	duration_ms   INTEGER NOT NULL,
	error         TEXT,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_run ON calls(run_id);

CREATE TABLE IF NOT EXISTS results (
	run_id   TEXT NOT NULL,
	config   TEXT NOT NULL,
	task_id  INTEGER NOT NULL,
	status   TEXT NOT NULL,
	category TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	PRIMARY KEY (run_id, config, task_id)
);`

// Ledger records one run's judge traffic. It implements classify.Recorder.
type Ledger struct {
	db       *sql.DB
	runID    string
	provider string
	model    string
	prices   *pricing.Table
	logger   *zap.Logger
	now      func() time.Time
}

type Options struct {
	Provider string
	Model    string
	Prices   *pricing.Table
	Logger   *zap.Logger
}

// Open creates or reuses the database at path and starts a new run id.
func Open(path string, opts Options) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	// Workers share one connection; SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ledger %s: %w", path, err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Ledger{
		db:       db,
		runID:    uuid.NewString(),
		provider: opts.Provider,
		model:    opts.Model,
		prices:   opts.Prices,
		logger:   opts.Logger,
		now:      time.Now,
	}, nil
}

func (l *Ledger) RunID() string { return l.runID }

// RecordCall logs one attempt. Ledger write failures are logged and never
// interrupt classification.
func (l *Ledger) RecordCall(ctx context.Context, c classify.Call) {
	var errText sql.NullString
	if c.Err != nil {
		errText = sql.NullString{String: c.Err.Error(), Valid: true}
	}
	cost := l.prices.Cost(l.provider, l.model, c.Usage.InputTokens, c.Usage.OutputTokens)
	_, err := l.db.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO calls (id, run_id, config, task_id, attempt, provider, model,
			input_tokens, output_tokens, cost_usd, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), l.runID, c.Config, c.TaskID, c.Attempt, l.provider, l.model,
		c.Usage.InputTokens, c.Usage.OutputTokens, cost, c.Duration.Milliseconds(), errText,
		l.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		l.logger.Warn("ledger write failed", zap.Error(err))
	}
}

func (l *Ledger) RecordResult(config string, c result.Classification) {
	_, err := l.db.Exec(
		`INSERT OR REPLACE INTO results (run_id, config, task_id, status, category, attempts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.runID, config, c.TaskID, string(c.Judgment.Status), c.Category(), c.Judgment.Attempts)
	if err != nil {
		l.logger.Warn("ledger write failed", zap.Error(err))
	}
}

// Totals aggregates a run's calls.
type Totals struct {
	Calls        int
	FailedCalls  int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

func (l *Ledger) Totals(ctx context.Context) (Totals, error) {
	return l.totals(ctx, l.runID)
}

func (l *Ledger) totals(ctx context.Context, runID string) (Totals, error) {
	var t Totals
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(input_tokens), 0),
		        COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(cost_usd), 0)
		   FROM calls WHERE run_id = ?`, runID,
	).Scan(&t.Calls, &t.FailedCalls, &t.InputTokens, &t.OutputTokens, &t.CostUSD)
	if err != nil {
		return Totals{}, fmt.Errorf("summing ledger: %w", err)
	}
	return t, nil
}

// StatusCounts tallies the run's recorded results by status.
func (l *Ledger) StatusCounts(ctx context.Context) (map[result.Status]int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM results WHERE run_id = ? GROUP BY status`, l.runID)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()
	out := map[result.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[result.Status(status)] = n
	}
	return out, rows.Err()
}

func (l *Ledger) Close() error { return l.db.Close() }
