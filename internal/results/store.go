// Package results persists query and validation run history to PostgreSQL
// so past rankings and performance summaries can be inspected later.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gpoulter/mscanner-sub000/internal/rank"
	"github.com/gpoulter/mscanner-sub000/internal/stats"
	"github.com/gpoulter/mscanner-sub000/pkg/postgres"
)

// Store persists run records in PostgreSQL.
//
// It requires these tables:
//
//	CREATE TABLE runs (
//	    id         BIGSERIAL PRIMARY KEY,
//	    kind       TEXT NOT NULL,
//	    params     JSONB NOT NULL,
//	    summary    JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE TABLE run_results (
//	    run_id BIGINT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
//	    pos    INT NOT NULL,
//	    doc_id BIGINT NOT NULL,
//	    score  DOUBLE PRECISION NOT NULL,
//	    PRIMARY KEY (run_id, pos)
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// RunKind distinguishes the stored run types.
const (
	KindQuery      = "query"
	KindValidation = "validation"
)

// QuerySummary is the JSONB summary stored for a ranking query run.
type QuerySummary struct {
	Positives int     `json:"positives"`
	Corpus    int     `json:"corpus"`
	Results   int     `json:"results"`
	Variant   string  `json:"variant"`
	Threshold float32 `json:"threshold"`
	Cached    bool    `json:"cached"`
	Elapsed   float64 `json:"elapsed_seconds"`
}

// ValidationSummary is the JSONB summary stored for a validation run.
type ValidationSummary struct {
	Positives int         `json:"positives"`
	Negatives int         `json:"negatives"`
	NFolds    int         `json:"nfolds"`
	Variant   string      `json:"variant"`
	W         float64     `json:"roc_area"`
	WStdErr   float64     `json:"roc_stderr"`
	PRArea    float64     `json:"pr_area"`
	AvPrec    float64     `json:"averaged_precision"`
	Breakeven float64     `json:"breakeven"`
	Tuned     stats.Tuned `json:"tuned"`
	Elapsed   float64     `json:"elapsed_seconds"`
}

// Run is one stored run row.
type Run struct {
	ID        int64
	Kind      string
	Params    json.RawMessage
	Summary   json.RawMessage
	CreatedAt time.Time
}

// NewStore creates a run-history store over an existing Postgres client.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "results-store"),
	}
}

// SaveQueryRun stores the run row and its ranked results in one
// transaction and returns the new run ID.
func (s *Store) SaveQueryRun(ctx context.Context, params any, summary QuerySummary, recs []rank.ScoreRecord) (int64, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("marshaling run params: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return 0, fmt.Errorf("marshaling run summary: %w", err)
	}

	var runID int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO runs (kind, params, summary, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
			KindQuery, paramsJSON, summaryJSON, time.Now().UTC(),
		).Scan(&runID); err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_results (run_id, pos, doc_id, score) VALUES ($1, $2, $3, $4)`)
		if err != nil {
			return fmt.Errorf("preparing result insert: %w", err)
		}
		defer stmt.Close()
		for i, rec := range recs {
			if _, err := stmt.ExecContext(ctx, runID, i, int64(rec.DocID), float64(rec.Score)); err != nil {
				return fmt.Errorf("inserting result %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("query run saved", "run_id", runID, "results", len(recs))
	return runID, nil
}

// SaveValidationRun stores a validation run row and returns its ID.
func (s *Store) SaveValidationRun(ctx context.Context, params any, summary ValidationSummary) (int64, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("marshaling run params: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return 0, fmt.Errorf("marshaling run summary: %w", err)
	}

	var runID int64
	err = s.db.DB.QueryRowContext(ctx,
		`INSERT INTO runs (kind, params, summary, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		KindValidation, paramsJSON, summaryJSON, time.Now().UTC(),
	).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("inserting validation run: %w", err)
	}
	s.logger.Info("validation run saved", "run_id", runID, "roc_area", summary.W)
	return runID, nil
}

// ListRuns returns the most recent runs of the given kind, newest first.
func (s *Store) ListRuns(ctx context.Context, kind string, limit int) ([]Run, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, kind, params, summary, created_at FROM runs
		 WHERE kind = $1 ORDER BY created_at DESC LIMIT $2`,
		kind, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.Params, &r.Summary, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunResults loads the ranked results of a stored query run in rank order.
// Returns nil, nil when the run has no stored results.
func (s *Store) RunResults(ctx context.Context, runID int64) ([]rank.ScoreRecord, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT doc_id, score FROM run_results WHERE run_id = $1 ORDER BY pos`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying run results: %w", err)
	}
	defer rows.Close()

	var recs []rank.ScoreRecord
	for rows.Next() {
		var docID int64
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		recs = append(recs, rank.ScoreRecord{DocID: uint32(docID), Score: float32(score)})
	}
	return recs, rows.Err()
}
