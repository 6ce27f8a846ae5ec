package harness

import (
	"time"

	"github.com/roach88/nbverify/internal/compare"
	"github.com/roach88/nbverify/internal/engine"
)

// Status is the verdict of one cell.
type Status string

const (
	StatusPassed          Status = "passed"
	StatusFailed          Status = "failed"
	StatusSkipped         Status = "skipped"
	StatusExpectedFailure Status = "expected_failure"
)

// Verdict is the outcome of one cell.
type Verdict struct {
	CellIndex int    `json:"cell_index"`
	Status    Status `json:"status"`

	// Code is set when the cell failed, even if the failure was expected.
	Code engine.ErrorCode `json:"code,omitempty"`

	Message     string               `json:"message,omitempty"`
	Diagnostics []compare.Diagnostic `json:"-"`
	Traceback   string               `json:"traceback,omitempty"`

	// OutputsHash identifies the produced outputs when the cell ran.
	OutputsHash string `json:"outputs_hash,omitempty"`

	// WouldPass marks an expected failure whose cell actually passed.
	WouldPass bool `json:"would_pass,omitempty"`

	// Duration is the wall time spent running the cell.
	Duration time.Duration `json:"-"`
}

// DiagnosticLines returns the diagnostics as plain text lines.
func (v Verdict) DiagnosticLines() []string {
	lines := make([]string, len(v.Diagnostics))
	for i, d := range v.Diagnostics {
		lines[i] = d.Text
	}
	return lines
}

// Report is the outcome of one notebook file run.
type Report struct {
	RunID    string    `json:"run_id"`
	Notebook string    `json:"notebook"`
	Path     string    `json:"path,omitempty"`
	Verdicts []Verdict `json:"verdicts"`

	// Poisoned is set when a cell timed out during the run.
	Poisoned bool `json:"poisoned"`

	// Error describes a fatal error that ended the run early.
	Error string `json:"error,omitempty"`
}

// Counts tallies verdicts by status.
type Counts struct {
	Passed           int `json:"passed"`
	Failed           int `json:"failed"`
	Skipped          int `json:"skipped"`
	ExpectedFailures int `json:"expected_failures"`
}

// Counts tallies the report's verdicts.
func (r *Report) Counts() Counts {
	var c Counts
	for _, v := range r.Verdicts {
		switch v.Status {
		case StatusPassed:
			c.Passed++
		case StatusFailed:
			c.Failed++
		case StatusSkipped:
			c.Skipped++
		case StatusExpectedFailure:
			c.ExpectedFailures++
		}
	}
	return c
}

// OK reports whether the run completed without failures.
func (r *Report) OK() bool {
	return r.Error == "" && r.Counts().Failed == 0
}

// Observer receives run progress, for example to export metrics.
type Observer interface {
	CellFinished(notebook string, v Verdict)
	FilePoisoned(notebook string)
}

type nopObserver struct{}

func (nopObserver) CellFinished(string, Verdict) {}
func (nopObserver) FilePoisoned(string)          {}
