package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/nbverify/internal/compare"
	"github.com/roach88/nbverify/internal/config"
	"github.com/roach88/nbverify/internal/engine"
	"github.com/roach88/nbverify/internal/harness"
	"github.com/roach88/nbverify/internal/kernel"
	"github.com/roach88/nbverify/internal/kernel/jsonl"
	"github.com/roach88/nbverify/internal/metrics"
	"github.com/roach88/nbverify/internal/sanitize"
	"github.com/roach88/nbverify/internal/store"
)

// KernelStarter starts a fresh kernel for one notebook.
type KernelStarter func(ctx context.Context, nb *harness.Notebook) (kernel.Transport, error)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// StartKernel overrides how kernels are started (for testing).
	// If nil, kernel_command is launched as a JSON-lines subprocess.
	StartKernel KernelStarter

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Files  []FileResult   `json:"files"`
	Totals harness.Counts `json:"totals"`
	Failed int            `json:"failed_files"`
}

// FileResult is one notebook's report with diagnostics as text lines.
type FileResult struct {
	RunID    string         `json:"run_id"`
	Notebook string         `json:"notebook"`
	Path     string         `json:"path,omitempty"`
	OK       bool           `json:"ok"`
	Poisoned bool           `json:"poisoned"`
	Error    string         `json:"error,omitempty"`
	Counts   harness.Counts `json:"counts"`
	Cells    []CellResult   `json:"cells"`
}

// CellResult is a verdict plus its rendered diagnostics.
type CellResult struct {
	harness.Verdict
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <notebook|dir>...",
		Short: "Execute notebook cells and compare their outputs",
		Long: `Execute every code cell of each notebook fixture on a fresh kernel and
compare the produced outputs with the stored reference outputs.

Each notebook gets its own kernel, started from kernel_command. Notebooks
run in parallel up to --jobs at a time; cells within a notebook run in order.

Exit codes:
  0 - Every cell passed, was skipped, or failed as expected
  1 - One or more cells failed
  2 - Command error (invalid paths, bad config, etc.)

Examples:
  nbverify run --kernel-command python3,-m,nbverify_kernel ./notebooks
  nbverify run --sanitize-with rules.cfg --db history.db demo.yaml
  nbverify run --format json --jobs 4 ./notebooks`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotebooks(opts, args, cmd)
		},
	}

	d := config.Default()
	cmd.Flags().Duration("exec-timeout", d.ExecTimeout, "time a cell may run before it is interrupted")
	cmd.Flags().Duration("idle-timeout", d.IdleTimeout, "time to wait for each output message after the reply")
	cmd.Flags().Bool("lax", false, "only check outputs of cells marked for checking")
	cmd.Flags().String("sanitize-with", "", "file of regex/replace pairs applied before comparison")
	cmd.Flags().StringSlice("skip-fields", nil, "additional output fields to ignore")
	cmd.Flags().Bool("images", false, "compare image payloads too")
	cmd.Flags().StringSlice("kernel-command", nil, "command that starts a JSON-lines kernel")
	cmd.Flags().String("db", "", "record results in this SQLite database")
	cmd.Flags().Int("jobs", d.Jobs, "notebooks to run in parallel")
	cmd.Flags().String("color", d.Color, "color diagnostics (auto|always|never)")
	cmd.Flags().String("metrics-out", "", "write Prometheus metrics to this file")

	return cmd
}

func runNotebooks(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigFile, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	notebooks, err := LoadNotebooks(paths, cfg.Lax)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load notebooks", err)
	}
	for _, nb := range notebooks {
		logger.Debug("loaded notebook", "notebook", nb.Name, "path", nb.Path, "cells", len(nb.Cells))
	}

	start := opts.StartKernel
	if start == nil {
		if len(cfg.KernelCommand) == 0 {
			return NewExitError(ExitCommandError, "kernel_command is not configured")
		}
		start = commandStarter(cfg.KernelCommand, cfg.IdleTimeout, logger)
	}

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}

	hopts := harness.Options{
		Skip:      compare.DefaultSkip(cfg.Images).With(cfg.SkipFields...),
		Sanitizer: sanitize.Load(cfg.SanitizeWith, logger),
		DriverOptions: []engine.DriverOption{
			engine.WithExecTimeout(cfg.ExecTimeout),
			engine.WithIdleTimeout(cfg.IdleTimeout),
		},
		RunIDs: runIDs,
		Logger: logger,
	}

	var recorder *metrics.Recorder
	if cfg.MetricsOut != "" {
		recorder = metrics.New()
		hopts.Observer = recorder
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reports := runAll(ctx, notebooks, start, hopts, cfg.Jobs)

	if cfg.DB != "" {
		if err := recordHistory(ctx, cfg.DB, reports, logger); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run history", err)
		}
	}
	if recorder != nil {
		if err := recorder.WriteTextfile(cfg.MetricsOut); err != nil {
			return WrapExitError(ExitCommandError, "failed to export metrics", err)
		}
	}

	result := buildRunResult(reports)
	if opts.Format == "json" {
		status := "ok"
		if result.Failed > 0 {
			status = "error"
		}
		if err := writeResponse(cmd.OutOrStdout(), status, result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		useColor := colorEnabled(cfg.Color, w)
		for _, r := range reports {
			writeReportText(w, r, useColor)
		}
		if err := writeSummaryTable(w, reports); err != nil {
			return err
		}
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d notebooks failed", result.Failed, len(reports)))
	}
	return nil
}

// commandStarter launches argv once per notebook. Request writes share
// the idle timeout as their bound.
func commandStarter(argv []string, writeTimeout time.Duration, logger *slog.Logger) KernelStarter {
	return func(ctx context.Context, nb *harness.Notebook) (kernel.Transport, error) {
		return jsonl.Start(ctx, argv,
			jsonl.WithLogger(logger.With("notebook", nb.Name)),
			jsonl.WithWriteTimeout(writeTimeout),
		)
	}
}

// runAll runs notebooks with at most jobs in flight. Reports keep the
// order of notebooks.
func runAll(ctx context.Context, notebooks []*harness.Notebook, start KernelStarter, opts harness.Options, jobs int) []*harness.Report {
	reports := make([]*harness.Report, len(notebooks))

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, nb := range notebooks {
		i, nb := i, nb
		g.Go(func() error {
			reports[i] = runOne(ctx, nb, start, opts)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// runOne runs a notebook on its own kernel. Failures to start or fatal
// run errors are recorded in the report rather than returned.
func runOne(ctx context.Context, nb *harness.Notebook, start KernelStarter, opts harness.Options) *harness.Report {
	logger := opts.Logger.With("notebook", nb.Name)

	transport, err := start(ctx, nb)
	if err != nil {
		logger.Error("kernel failed to start", "error", err)
		return &harness.Report{
			RunID:    opts.RunIDs.Generate(),
			Notebook: nb.Name,
			Path:     nb.Path,
			Verdicts: []harness.Verdict{},
			Error:    fmt.Sprintf("failed to start kernel: %v", err),
		}
	}
	defer func() {
		if err := transport.Stop(); err != nil {
			logger.Warn("error stopping kernel", "error", err)
		}
	}()

	report, err := harness.RunFile(ctx, nb, transport, opts)
	if err != nil {
		logger.Error("notebook run ended early", "error", err)
	}
	return report
}

func recordHistory(ctx context.Context, path string, reports []*harness.Report, logger *slog.Logger) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	for _, r := range reports {
		seq, err := st.WriteReport(ctx, r)
		if err != nil {
			return err
		}
		logger.Debug("recorded run", "run_id", r.RunID, "seq", seq)
	}
	return nil
}

func buildRunResult(reports []*harness.Report) RunResult {
	result := RunResult{Files: make([]FileResult, 0, len(reports))}
	for _, r := range reports {
		counts := r.Counts()
		result.Totals.Passed += counts.Passed
		result.Totals.Failed += counts.Failed
		result.Totals.Skipped += counts.Skipped
		result.Totals.ExpectedFailures += counts.ExpectedFailures
		if !r.OK() {
			result.Failed++
		}

		cells := make([]CellResult, len(r.Verdicts))
		for i, v := range r.Verdicts {
			cells[i] = CellResult{Verdict: v, Diagnostics: v.DiagnosticLines()}
		}
		result.Files = append(result.Files, FileResult{
			RunID:    r.RunID,
			Notebook: r.Notebook,
			Path:     r.Path,
			OK:       r.OK(),
			Poisoned: r.Poisoned,
			Error:    r.Error,
			Counts:   counts,
			Cells:    cells,
		})
	}
	return result
}

// writeReportText prints one line per cell, with diagnostics and
// tracebacks indented under failing cells.
func writeReportText(w io.Writer, r *harness.Report, useColor bool) {
	fmt.Fprintf(w, "%s (%s)\n", r.Notebook, r.Path)
	for _, v := range r.Verdicts {
		line := fmt.Sprintf("  cell %d: %s", v.CellIndex, v.Status)
		if v.Code != "" {
			line += " " + string(v.Code)
		}
		if v.Message != "" {
			line += ": " + v.Message
		}
		if v.WouldPass {
			line += " (would have passed)"
		}
		fmt.Fprintln(w, line)

		if v.Status != harness.StatusFailed {
			continue
		}
		if len(v.Diagnostics) > 0 {
			writeIndented(w, compare.Format(v.Diagnostics, useColor))
		}
		if v.Traceback != "" {
			writeIndented(w, v.Traceback)
		}
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", r.Error)
	}
}

func writeIndented(w io.Writer, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(w, "      %s\n", line)
	}
}

func writeSummaryTable(w io.Writer, reports []*harness.Report) error {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		c := r.Counts()
		rows = append(rows, []string{
			r.Notebook,
			fmt.Sprint(c.Passed),
			fmt.Sprint(c.Failed),
			fmt.Sprint(c.Skipped),
			fmt.Sprint(c.ExpectedFailures),
			reportStatus(r.OK(), r.Error),
		})
	}
	return renderTable(w, []string{"Notebook", "Passed", "Failed", "Skipped", "XFail", "Result"}, rows)
}

func reportStatus(ok bool, runErr string) string {
	switch {
	case runErr != "":
		return "error"
	case ok:
		return "ok"
	default:
		return "failed"
	}
}
