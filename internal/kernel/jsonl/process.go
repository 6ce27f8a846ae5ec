package jsonl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// process is an interpreter subprocess whose pipes back a Transport.
type process struct {
	cmd *exec.Cmd
}

// Start launches argv and connects a Transport to its stdin and stdout.
// The process's stderr is inherited.
func Start(ctx context.Context, argv []string, opts ...Option) (*Transport, error) {
	if len(argv) == 0 {
		return nil, errors.New("start kernel: empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("start kernel: stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("start kernel: stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start kernel %q: %w", argv[0], err)
	}

	t := New(stdout, stdin, opts...)
	t.proc = &process{cmd: cmd}
	t.logger.Debug("kernel started", "command", argv[0], "pid", cmd.Process.Pid)
	return t, nil
}

func (p *process) interrupt() error {
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("interrupt kernel: %w", err)
	}
	return nil
}

func (p *process) kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill kernel: %w", err)
	}
	return nil
}

// wait reaps the process. Callers must have finished reading its stdout.
func (p *process) wait() {
	// Exit status after a kill carries no information.
	_ = p.cmd.Wait()
}

func (p *process) alive() bool {
	ok, err := gopsprocess.PidExists(int32(p.cmd.Process.Pid))
	return err == nil && ok
}
