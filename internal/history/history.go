// Package history persists completed chain runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dusk-indust/wavecode/internal/intent"
	"github.com/dusk-indust/wavecode/internal/orchestrator"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("history: run not found")

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 20

// timeLayout is fixed width so created_at sorts lexically in time order.
// RFC3339Nano trims trailing zeros and breaks that within one second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one stored run.
type Record struct {
	ID          string                    `json:"id"`
	Input       string                    `json:"input"`
	FinalAnswer string                    `json:"finalAnswer"`
	Intent      string                    `json:"intent"`
	TokensUsed  int                       `json:"tokensUsed"`
	Duration    time.Duration             `json:"duration"`
	State       *orchestrator.SharedState `json:"state,omitempty"`
	AuditTrail  []orchestrator.MergeAudit `json:"auditTrail,omitempty"`
	Outcome     Outcome                   `json:"outcome"`
	CreatedAt   time.Time                 `json:"createdAt"`
}

// Outcome records which waves a run skipped or served from cache, and
// whether it stopped on the token budget.
type Outcome struct {
	SkippedWaves    []string `json:"skippedWaves,omitempty"`
	CachedWaves     []string `json:"cachedWaves,omitempty"`
	BudgetExhausted bool     `json:"budgetExhausted,omitempty"`
}

// ChainResult rebuilds the parts of a chain result a record keeps. The run's
// intent confidence is not stored.
func (r *Record) ChainResult() *orchestrator.ChainResult {
	return &orchestrator.ChainResult{
		RunID:           r.ID,
		FinalAnswer:     r.FinalAnswer,
		State:           r.State,
		AuditTrail:      r.AuditTrail,
		Duration:        r.Duration,
		Intent:          intent.Result{Type: intent.Type(r.Intent)},
		SkippedWaves:    r.Outcome.SkippedWaves,
		CachedWaves:     r.Outcome.CachedWaves,
		TokensUsed:      r.TokensUsed,
		BudgetExhausted: r.Outcome.BudgetExhausted,
	}
}

// Store is a SQLite-backed run history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path, creating its
// directory if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("history: create dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			input        TEXT    NOT NULL,
			final_answer TEXT    NOT NULL,
			intent       TEXT    NOT NULL DEFAULT '',
			tokens_used  INTEGER NOT NULL DEFAULT 0,
			duration_ms  INTEGER NOT NULL DEFAULT 0,
			state_json   TEXT    NOT NULL,
			audit_json   TEXT    NOT NULL,
			outcome_json TEXT    NOT NULL DEFAULT '{}',
			created_at   TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	`)
	return err
}

// Save stores a completed run. Saving the same run ID again replaces it.
func (s *Store) Save(ctx context.Context, input string, res *orchestrator.ChainResult) error {
	if res == nil {
		return errors.New("history: nil result")
	}
	state, err := json.Marshal(res.State)
	if err != nil {
		return fmt.Errorf("history: encode state: %w", err)
	}
	audit, err := json.Marshal(res.AuditTrail)
	if err != nil {
		return fmt.Errorf("history: encode audit: %w", err)
	}
	outcome, err := json.Marshal(Outcome{
		SkippedWaves:    res.SkippedWaves,
		CachedWaves:     res.CachedWaves,
		BudgetExhausted: res.BudgetExhausted,
	})
	if err != nil {
		return fmt.Errorf("history: encode outcome: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, input, final_answer, intent, tokens_used, duration_ms, state_json, audit_json, outcome_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, input, res.FinalAnswer, string(res.Intent.Type), res.TokensUsed,
		res.Duration.Milliseconds(), string(state), string(audit), string(outcome),
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("history: save %s: %w", res.RunID, err)
	}
	return nil
}

// Get returns the full record of a run.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, input, final_answer, intent, tokens_used, duration_ms, state_json, audit_json, outcome_json, created_at
		FROM runs WHERE id = ?`, id)

	var (
		r                     Record
		durMS                 int64
		state, audit, outcome string
		created               string
	)
	err := row.Scan(&r.ID, &r.Input, &r.FinalAnswer, &r.Intent, &r.TokensUsed, &durMS, &state, &audit, &outcome, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get %s: %w", id, err)
	}

	r.Duration = time.Duration(durMS) * time.Millisecond
	if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("history: get %s: created_at: %w", id, err)
	}
	if err := json.Unmarshal([]byte(state), &r.State); err != nil {
		return nil, fmt.Errorf("history: get %s: decode state: %w", id, err)
	}
	if err := json.Unmarshal([]byte(audit), &r.AuditTrail); err != nil {
		return nil, fmt.Errorf("history: get %s: decode audit: %w", id, err)
	}
	if err := json.Unmarshal([]byte(outcome), &r.Outcome); err != nil {
		return nil, fmt.Errorf("history: get %s: decode outcome: %w", id, err)
	}
	return &r, nil
}

// List returns the most recent runs first, without state or audit trail.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, input, final_answer, intent, tokens_used, duration_ms, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []Record{}
	for rows.Next() {
		var (
			r       Record
			durMS   int64
			created string
		)
		if err := rows.Scan(&r.ID, &r.Input, &r.FinalAnswer, &r.Intent, &r.TokensUsed, &durMS, &created); err != nil {
			return nil, fmt.Errorf("history: list: %w", err)
		}
		r.Duration = time.Duration(durMS) * time.Millisecond
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		records = append(records, r)
	}
	return records, rows.Err()
}
