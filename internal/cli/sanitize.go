package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/nbverify/internal/sanitize"
)

// SanitizeResult is the JSON payload of the sanitize command.
type SanitizeResult struct {
	Rules  int    `json:"rules"`
	Output string `json:"output"`
}

// NewSanitizeCommand creates the sanitize command.
func NewSanitizeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sanitize <rules-file> [input-file]",
		Short: "Apply sanitize rules to text",
		Long: `Parse a sanitize rule file strictly and print the input with every rule
applied, in file order. Input is read from input-file, or stdin if omitted.

Rule files hold pairs of lines:
  regex: <pattern>
  replace: <replacement>

Unlike run, which ignores a broken rule file with a warning, sanitize
reports parse errors.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSanitize(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runSanitize(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	rulesFile, err := os.Open(args[0])
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open rules", err)
	}
	defer rulesFile.Close()

	s, err := sanitize.Read(rulesFile)
	if err != nil {
		if opts.Format == "json" {
			_ = formatter.Error(ErrCodeRules, err.Error(), map[string]string{"path": args[0]})
		}
		return WrapExitError(ExitCommandError, "invalid sanitize rules", err)
	}
	formatter.VerboseLog("Loaded %d rule(s) from %s", s.Len(), args[0])

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 2 {
		f, err := os.Open(args[1])
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input", err)
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	out := s.Apply(string(data))
	if opts.Format == "json" {
		return writeResponse(formatter.Writer, "ok", SanitizeResult{Rules: s.Len(), Output: out})
	}
	_, err = fmt.Fprint(formatter.Writer, out)
	return err
}
