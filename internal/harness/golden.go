package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/nbverify/internal/ir"
)

// Snapshot renders the deterministic part of a report as canonical JSON.
// Run ids, output hashes, and durations are excluded so that snapshots
// are stable across runs.
func Snapshot(r *Report) ([]byte, error) {
	verdicts := make([]any, len(r.Verdicts))
	for i, v := range r.Verdicts {
		m := map[string]any{
			"cell_index": v.CellIndex,
			"status":     string(v.Status),
		}
		if v.Code != "" {
			m["code"] = string(v.Code)
		}
		if v.Message != "" {
			m["message"] = v.Message
		}
		if v.Traceback != "" {
			m["traceback"] = v.Traceback
		}
		if len(v.Diagnostics) > 0 {
			m["diagnostics"] = v.DiagnosticLines()
		}
		if v.WouldPass {
			m["would_pass"] = true
		}
		verdicts[i] = m
	}

	snapshot := map[string]any{
		"notebook": r.Notebook,
		"poisoned": r.Poisoned,
		"verdicts": verdicts,
	}
	if r.Error != "" {
		snapshot["error"] = r.Error
	}
	return ir.MarshalCanonical(snapshot)
}

// AssertGolden compares a report snapshot against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, r *Report) {
	t.Helper()

	data, err := Snapshot(r)
	if err != nil {
		t.Fatalf("snapshot report: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
