package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/nbverify/internal/config"
	"github.com/roach88/nbverify/internal/harness"
	"github.com/roach88/nbverify/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
	RunID string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [notebook]",
		Short: "List recorded runs",
		Long: `List runs recorded with run --db, oldest first.

With --run, print the per-cell results of one run instead.

Examples:
  nbverify history --db history.db
  nbverify history --db history.db --limit 5 arithmetic
  nbverify history --db history.db --run 0192f7c4-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			notebook := ""
			if len(args) == 1 {
				notebook = args[0]
			}
			return runHistory(opts, notebook, cmd)
		},
	}

	cmd.Flags().String("db", "", "path to SQLite database (or db in config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "show only the most recent runs (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the cells of one run")

	return cmd
}

func runHistory(opts *HistoryOptions, notebook string, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigFile, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if cfg.DB == "" {
		return NewExitError(ExitCommandError, "no database given: use --db or set db in config")
	}
	// Opening creates the file; history must not.
	if _, err := os.Stat(cfg.DB); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", cfg.DB))
	}

	st, err := store.Open(cfg.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	if opts.RunID != "" {
		report, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		if opts.Format == "json" {
			return writeResponse(w, "ok", buildRunResult([]*harness.Report{report}).Files[0])
		}
		writeReportText(w, report, false)
		return nil
	}

	runs, err := st.ListRuns(ctx, notebook, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return writeResponse(w, "ok", runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			fmt.Sprint(r.Seq),
			r.ID,
			r.Notebook,
			fmt.Sprint(r.Counts.Passed),
			fmt.Sprint(r.Counts.Failed),
			fmt.Sprint(r.Counts.Skipped),
			fmt.Sprint(r.Counts.ExpectedFailures),
			reportStatus(r.OK(), r.Error),
		}
	}
	return renderTable(w, []string{"Seq", "Run", "Notebook", "Passed", "Failed", "Skipped", "XFail", "Result"}, rows)
}
