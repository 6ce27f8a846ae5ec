package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nbverify/internal/engine"
	"github.com/roach88/nbverify/internal/harness"
	"github.com/roach88/nbverify/internal/kernel"
	"github.com/roach88/nbverify/internal/kernel/fake"
)

const passingNotebook = `name: arithmetic
cells:
  - source: print(1 + 1)
    outputs:
      - output_type: stream
        name: stdout
        text: "2\n"
  - source: "# NBVAL_SKIP\nimport time; time.sleep(100)"
`

const mismatchNotebook = `name: greeting
cells:
  - source: print("hello")
    outputs:
      - output_type: stream
        name: stdout
        text: "hello\n"
`

// writeFixture writes a notebook fixture into dir.
func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// scriptedKernels starts a fake kernel per notebook from scripts keyed by
// notebook name.
func scriptedKernels(scripts map[string][]fake.Script) KernelStarter {
	return func(_ context.Context, nb *harness.Notebook) (kernel.Transport, error) {
		return fake.New(scripts[nb.Name]...), nil
	}
}

// executeRun runs the run command with a scripted kernel and returns its
// stdout.
func executeRun(t *testing.T, format string, start KernelStarter, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: format},
		StartKernel: start,
		RunIDs:      engine.NewFixedGenerator("run-1", "run-2", "run-3"),
	}
	cmd := newRunCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
