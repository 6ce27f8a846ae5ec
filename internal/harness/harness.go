package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/nbverify/internal/compare"
	"github.com/roach88/nbverify/internal/engine"
	"github.com/roach88/nbverify/internal/ir"
	"github.com/roach88/nbverify/internal/kernel"
	"github.com/roach88/nbverify/internal/sanitize"
)

// Messages for downgraded verdicts.
const (
	msgPoisoned   = "an earlier cell in this file timed out"
	msgKernelGone = "an earlier cell in this file timed out and the kernel is not running"
)

// Options controls a file run.
type Options struct {
	// Skip excludes fields from output comparison.
	Skip compare.SkipSet

	// Sanitizer is applied to produced and reference values.
	Sanitizer *sanitize.Sanitizer

	// DriverOptions configure the per-file execution driver.
	DriverOptions []engine.DriverOption

	// RunIDs generates report run ids; defaults to UUIDv7.
	RunIDs engine.RunIDGenerator

	// Observer receives per-cell verdicts; may be nil.
	Observer Observer

	Logger *slog.Logger
}

// DefaultOptions returns options with the canonical skip set and no
// sanitize rules.
func DefaultOptions() Options {
	return Options{Skip: compare.DefaultSkip(false)}
}

func (o Options) withDefaults() Options {
	if o.RunIDs == nil {
		o.RunIDs = engine.UUIDv7Generator{}
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// RunFile runs every cell of nb in order on transport.
//
// Cell failures are recorded as verdicts and never stop the run. A fatal
// error (aborted request, broken transport) ends the run; the partial
// report is returned together with the error.
func RunFile(ctx context.Context, nb *Notebook, transport kernel.Transport, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With("notebook", nb.Name)

	for _, w := range nb.Warnings {
		logger.Warn("cell policy conflict", "detail", w)
	}

	driverOpts := append([]engine.DriverOption{engine.WithLogger(logger)}, opts.DriverOptions...)
	driver := engine.NewDriver(transport, driverOpts...)
	state := &engine.FileRunState{}

	report := &Report{
		RunID:    opts.RunIDs.Generate(),
		Notebook: nb.Name,
		Path:     nb.Path,
		Verdicts: make([]Verdict, 0, len(nb.Cells)),
	}

	for _, cell := range nb.Cells {
		wasPoisoned := state.Poisoned()

		v, err := RunCell(ctx, driver, cell, state, opts)
		report.Verdicts = append(report.Verdicts, v)
		opts.Observer.CellFinished(nb.Name, v)
		logger.Debug("cell finished", "cell", cell.Index, "status", v.Status, "code", v.Code)

		if !wasPoisoned && state.Poisoned() {
			report.Poisoned = true
			opts.Observer.FilePoisoned(nb.Name)
			logger.Warn("file run poisoned by timeout", "cell", cell.Index)
		}
		if err != nil {
			report.Error = err.Error()
			return report, fmt.Errorf("run %s: %w", nb.Name, err)
		}
	}
	return report, nil
}

// RunCell runs one cell and returns its verdict.
//
// The returned error is non-nil only for fatal errors; ordinary failures
// are reported in the verdict.
func RunCell(ctx context.Context, driver *engine.Driver, cell ir.Cell, state *engine.FileRunState, opts Options) (Verdict, error) {
	if cell.Policy.Skip {
		return Verdict{CellIndex: cell.Index, Status: StatusSkipped}, nil
	}

	poisoned := state.Poisoned()
	if poisoned && !driver.Transport().Alive() {
		return Verdict{CellIndex: cell.Index, Status: StatusExpectedFailure, Message: msgKernelGone}, nil
	}

	clock := driver.Clock()
	start := clock.Now()
	outputs, err := driver.Run(ctx, cell, state)
	v := judge(cell, outputs, err, opts)
	v.Duration = clock.Now().Sub(start)

	var fatal error
	if engine.IsFatalError(err) {
		fatal = err
	} else if err != nil {
		var ce *engine.CellError
		if !errors.As(err, &ce) {
			// Driver errors are always CellErrors; anything else is a bug.
			fatal = err
		}
	}

	if poisoned {
		v.WouldPass = v.Status == StatusPassed
		v.Status = StatusExpectedFailure
		v.Message = msgPoisoned
	}
	return v, fatal
}

// judge turns driver output into a verdict, comparing outputs when the
// cell's policy asks for it.
func judge(cell ir.Cell, outputs []ir.OutputRecord, err error, opts Options) Verdict {
	v := Verdict{CellIndex: cell.Index}

	if err != nil {
		v.Status = StatusFailed
		v.Message = err.Error()
		var ce *engine.CellError
		if errors.As(err, &ce) {
			v.Code = ce.Code
			v.Message = ce.Message
			v.Traceback = ce.Traceback
			v.OutputsHash = hashOutputs(ce.Outputs)
		}
		return v
	}

	v.OutputsHash = hashOutputs(outputs)
	if cell.Policy.Check {
		res := compare.Outputs(outputs, cell.Outputs, compare.Options{Skip: opts.Skip, Sanitizer: opts.Sanitizer})
		if !res.Passed {
			me := engine.NewMismatchError(cell, outputs, res.Diagnostics)
			v.Status = StatusFailed
			v.Code = me.Code
			v.Message = me.Message
			v.Diagnostics = me.Diagnostics
			return v
		}
	}

	v.Status = StatusPassed
	return v
}

func hashOutputs(outputs []ir.OutputRecord) string {
	h, err := ir.OutputsHash(outputs)
	if err != nil {
		return ""
	}
	return h
}
