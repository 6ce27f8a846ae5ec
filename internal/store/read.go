package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nbverify/internal/engine"
	"github.com/roach88/nbverify/internal/harness"
)

// RunSummary is one row of the run history.
type RunSummary struct {
	ID       string         `json:"id"`
	Seq      int64          `json:"seq"`
	Notebook string         `json:"notebook"`
	Path     string         `json:"path,omitempty"`
	Poisoned bool           `json:"poisoned"`
	Error    string         `json:"error,omitempty"`
	Counts   harness.Counts `json:"counts"`
}

// OK reports whether the run had no failures and no fatal error.
func (r RunSummary) OK() bool {
	return r.Error == "" && r.Counts.Failed == 0
}

const runColumns = `id, seq, notebook, path, poisoned, error, passed, failed, skipped, expected_failures`

// ReadRun returns the stored report for a run id, verdicts ordered by cell
// index. Returns ErrRunNotFound if the id is unknown.
func (s *Store) ReadRun(ctx context.Context, id string) (*harness.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	summary, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read run %q: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %q: %w", id, err)
	}

	verdicts, err := s.readVerdicts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read run %q: %w", id, err)
	}

	return &harness.Report{
		RunID:    summary.ID,
		Notebook: summary.Notebook,
		Path:     summary.Path,
		Verdicts: verdicts,
		Poisoned: summary.Poisoned,
		Error:    summary.Error,
	}, nil
}

// ListRuns returns stored runs ordered by seq ASC, id ASC COLLATE BINARY.
// An empty notebook lists every notebook. A positive limit keeps only the
// most recent runs.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRuns(ctx context.Context, notebook string, limit int) ([]RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE (? = '' OR notebook = ?)`
	args := []any{notebook, notebook}
	if limit > 0 {
		query = `SELECT * FROM (` + query + ` ORDER BY seq DESC LIMIT ?)`
		args = append(args, limit)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func (s *Store) readVerdicts(ctx context.Context, runID string) ([]harness.Verdict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cell_index, status, code, message, diagnostics, traceback, outputs_hash, would_pass
		FROM cell_results
		WHERE run_id = ?
		ORDER BY cell_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cell results: %w", err)
	}
	defer rows.Close()

	verdicts := []harness.Verdict{}
	for rows.Next() {
		var (
			v         harness.Verdict
			status    string
			code      string
			diagJSON  string
			wouldPass int
		)
		if err := rows.Scan(&v.CellIndex, &status, &code, &v.Message, &diagJSON, &v.Traceback, &v.OutputsHash, &wouldPass); err != nil {
			return nil, fmt.Errorf("scan cell result: %w", err)
		}
		v.Status = harness.Status(status)
		v.Code = engine.ErrorCode(code)
		v.WouldPass = wouldPass != 0
		if v.Diagnostics, err = unmarshalDiagnostics(diagJSON); err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cell results: %w", err)
	}
	return verdicts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunSummary, error) {
	var (
		r        RunSummary
		poisoned int
	)
	err := row.Scan(&r.ID, &r.Seq, &r.Notebook, &r.Path, &poisoned, &r.Error,
		&r.Counts.Passed, &r.Counts.Failed, &r.Counts.Skipped, &r.Counts.ExpectedFailures)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan run: %w", err)
	}
	r.Poisoned = poisoned != 0
	return r, nil
}
