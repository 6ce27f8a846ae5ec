package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/nbverify/internal/compare"
	"github.com/roach88/nbverify/internal/engine"
	"github.com/roach88/nbverify/internal/harness"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReport builds a report with one verdict of every status.
func createTestReport(runID, notebook string) *harness.Report {
	return &harness.Report{
		RunID:    runID,
		Notebook: notebook,
		Path:     "testdata/" + notebook + ".yaml",
		Poisoned: true,
		Verdicts: []harness.Verdict{
			{CellIndex: 0, Status: harness.StatusPassed, OutputsHash: "sha256:aa"},
			{
				CellIndex: 1,
				Status:    harness.StatusFailed,
				Code:      engine.ErrCodeOutputMismatch,
				Message:   "cell outputs differ",
				Diagnostics: []compare.Diagnostic{
					{Kind: compare.DiagMismatch, Text: "mismatch 'text'"},
					{Kind: compare.DiagValue, Text: "<b>2</b>\n"},
				},
				OutputsHash: "sha256:bb",
			},
			{CellIndex: 2, Status: harness.StatusSkipped},
			{
				CellIndex: 3,
				Status:    harness.StatusExpectedFailure,
				Code:      engine.ErrCodeProtocolTimeout,
				Message:   "timeout of 2s exceeded while executing cell",
				Traceback: "Traceback (most recent call last):\nKeyboardInterrupt",
			},
			{CellIndex: 4, Status: harness.StatusExpectedFailure, WouldPass: true},
		},
	}
}
