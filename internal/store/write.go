package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/nbverify/internal/harness"
)

// WriteReport stores a report and its verdicts in one transaction and
// returns the run's seq.
//
// The seq is MAX(seq)+1 over all stored runs. Writing a run id that is
// already stored is a no-op that returns the existing seq.
func (s *Store) WriteReport(ctx context.Context, r *harness.Report) (int64, error) {
	if r == nil || r.RunID == "" {
		return 0, fmt.Errorf("write report: run id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write report: begin: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT seq FROM runs WHERE id = ?`, r.RunID).Scan(&existing)
	switch {
	case err == nil:
		return existing, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("write report: lookup run: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("write report: next seq: %w", err)
	}

	counts := r.Counts()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, notebook, path, poisoned, error, passed, failed, skipped, expected_failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID,
		seq,
		r.Notebook,
		r.Path,
		boolToInt(r.Poisoned),
		r.Error,
		counts.Passed,
		counts.Failed,
		counts.Skipped,
		counts.ExpectedFailures,
	)
	if err != nil {
		return 0, fmt.Errorf("write report: insert run: %w", err)
	}

	for _, v := range r.Verdicts {
		if err := writeVerdict(ctx, tx, r.RunID, v); err != nil {
			return 0, fmt.Errorf("write report: cell %d: %w", v.CellIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write report: commit: %w", err)
	}
	return seq, nil
}

func writeVerdict(ctx context.Context, tx *sql.Tx, runID string, v harness.Verdict) error {
	diagJSON, err := marshalDiagnostics(v.Diagnostics)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cell_results
		(run_id, cell_index, status, code, message, diagnostics, traceback, outputs_hash, would_pass)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, cell_index) DO NOTHING
	`,
		runID,
		v.CellIndex,
		string(v.Status),
		string(v.Code),
		v.Message,
		diagJSON,
		v.Traceback,
		v.OutputsHash,
		boolToInt(v.WouldPass),
	)
	return err
}
