package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NotebookSummary describes a loaded fixture without running it.
type NotebookSummary struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Cells    int      `json:"cells"`
	Checked  int      `json:"checked"`
	Skipped  int      `json:"skipped"`
	Raises   int      `json:"raises"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var lax bool

	cmd := &cobra.Command{
		Use:   "validate <notebook|dir>...",
		Short: "Load fixtures and resolve cell policies without a kernel",
		Long: `Load notebook fixtures, validate their structure, and report how each
cell will be treated. Policy conflicts between comment markers and tags are
listed as warnings. No kernel is started.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, lax, cmd)
		},
	}

	cmd.Flags().BoolVar(&lax, "lax", false, "only check outputs of cells marked for checking")
	return cmd
}

func runValidate(opts *RootOptions, paths []string, lax bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	notebooks, err := LoadNotebooks(paths, lax)
	if err != nil {
		code := ErrCodeGeneric
		var le *LoadError
		if errors.As(err, &le) {
			code = le.Code
		}
		if opts.Format == "json" {
			_ = formatter.Error(code, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "validation failed", err)
	}

	summaries := make([]NotebookSummary, len(notebooks))
	for i, nb := range notebooks {
		s := NotebookSummary{Name: nb.Name, Path: nb.Path, Cells: len(nb.Cells), Warnings: nb.Warnings}
		for _, c := range nb.Cells {
			switch {
			case c.Policy.Skip:
				s.Skipped++
			case c.Policy.CheckException:
				s.Raises++
			}
			if !c.Policy.Skip && c.Policy.Check {
				s.Checked++
			}
		}
		summaries[i] = s
		formatter.VerboseLog("Loaded %s from %s", nb.Name, nb.Path)
	}

	if opts.Format == "json" {
		return writeResponse(formatter.Writer, "ok", summaries)
	}

	w := formatter.Writer
	for _, s := range summaries {
		fmt.Fprintf(w, "%s (%s): %d cells, %d checked, %d skipped, %d expected to raise\n",
			s.Name, s.Path, s.Cells, s.Checked, s.Skipped, s.Raises)
		for _, warn := range s.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn)
		}
	}
	return nil
}
