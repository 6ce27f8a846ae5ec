package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/roach88/nbverify/internal/ir"
	"github.com/roach88/nbverify/internal/kernel"
)

const (
	// DefaultExecTimeout bounds the wait for a cell's execute reply.
	DefaultExecTimeout = 2000 * time.Second

	// DefaultIdleTimeout bounds the wait for each side-effect message.
	DefaultIdleTimeout = 5 * time.Second
)

// Driver runs cells against one interpreter transport.
//
// The Driver owns the timeout escalation policy:
//   - no execute reply within the exec timeout: interrupt, poison the file,
//     and drain the interrupted execution
//   - no message within the idle timeout while draining an interrupted
//     execution: stop the interpreter
//   - no message within the idle timeout otherwise: poison the file
//
// A Driver is not safe for concurrent use; cells of one file run in order.
type Driver struct {
	transport   kernel.Transport
	execTimeout time.Duration
	idleTimeout time.Duration
	clock       Clock
	logger      *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithExecTimeout sets the deadline for the execute reply.
func WithExecTimeout(d time.Duration) DriverOption {
	return func(dr *Driver) { dr.execTimeout = d }
}

// WithIdleTimeout sets the per-message timeout while draining.
func WithIdleTimeout(d time.Duration) DriverOption {
	return func(dr *Driver) { dr.idleTimeout = d }
}

// WithClock sets the clock used for deadlines.
func WithClock(c Clock) DriverOption {
	return func(dr *Driver) { dr.clock = c }
}

// WithLogger sets the logger for state transitions and discarded messages.
func WithLogger(l *slog.Logger) DriverOption {
	return func(dr *Driver) { dr.logger = l }
}

// NewDriver creates a Driver over transport.
func NewDriver(transport kernel.Transport, opts ...DriverOption) *Driver {
	d := &Driver{
		transport:   transport,
		execTimeout: DefaultExecTimeout,
		idleTimeout: DefaultIdleTimeout,
		clock:       SystemClock{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Transport returns the transport the driver runs cells on.
func (d *Driver) Transport() kernel.Transport {
	return d.transport
}

// Clock returns the clock the driver reads deadlines from.
func (d *Driver) Clock() Clock {
	return d.clock
}

// Run executes cell and returns its output records in emission order.
//
// Failures are returned as *CellError; the records collected before the
// failure are attached to it. state is poisoned on protocol and drain
// timeouts.
func (d *Driver) Run(ctx context.Context, cell ir.Cell, state *FileRunState) ([]ir.OutputRecord, error) {
	r := &cellRun{driver: d, cell: cell, state: state, phase: StateIdle}
	return r.execute(ctx)
}

// cellRun holds the state of one cell execution.
type cellRun struct {
	driver *Driver
	cell   ir.Cell
	state  *FileRunState
	phase  State
	id     string

	outputs      []ir.OutputRecord
	pendingClear bool
	raised       *ir.ErrorOutput
}

func (r *cellRun) transition(next State) {
	r.driver.logger.Debug("cell state",
		"cell", r.cell.Index,
		"from", r.phase.String(),
		"to", next.String(),
		"parent_id", r.id,
	)
	r.phase = next
}

func (r *cellRun) fail(code ErrorCode, cause error, format string, args ...any) *CellError {
	e := newCellError(code, r.cell, format, args...)
	e.Err = cause
	e.Outputs = r.outputs
	if r.raised != nil {
		e.Traceback = r.raised.JoinedTraceback()
	}
	r.transition(StateTerminal)
	return e
}

func (r *cellRun) execute(ctx context.Context) ([]ir.OutputRecord, error) {
	d := r.driver

	r.transition(StateSubmitted)
	id, err := d.transport.Submit(ctx, r.cell.Source)
	if err != nil {
		return nil, r.fail(ErrCodeTransportFailure, err, "submit failed: %v", err)
	}
	r.id = id

	r.transition(StateAwaitingReply)
	interrupted, err := r.awaitReply(ctx)
	if err != nil {
		return nil, err
	}

	r.transition(StateDraining)
	if err := r.drain(ctx, interrupted); err != nil {
		return nil, err
	}

	switch {
	case interrupted:
		return nil, r.fail(ErrCodeProtocolTimeout, nil,
			"timeout of %s exceeded while executing cell", d.execTimeout)
	case r.raised != nil && !r.cell.Policy.CheckException:
		return nil, r.fail(ErrCodeInterpreterError, nil,
			"cell raised %s: %s", r.raised.Ename, r.raised.Evalue)
	case r.raised == nil && r.cell.Policy.CheckException:
		return nil, r.fail(ErrCodeMissingException, nil,
			"cell was expected to raise an exception but did not")
	}

	r.transition(StateTerminal)
	return r.outputs, nil
}

// awaitReply waits for the execute reply matching the request. It reports
// whether the request had to be interrupted.
func (r *cellRun) awaitReply(ctx context.Context) (bool, error) {
	d := r.driver
	deadline := d.clock.Now().Add(d.execTimeout)

	for {
		remaining := deadline.Sub(d.clock.Now())
		if remaining <= 0 {
			return r.interruptOnTimeout(ctx), nil
		}

		msg, err := d.transport.Poll(ctx, kernel.Control, remaining)
		if errors.Is(err, kernel.ErrTimeout) {
			return r.interruptOnTimeout(ctx), nil
		}
		if err != nil {
			return false, r.fail(ErrCodeTransportFailure, err, "waiting for reply: %v", err)
		}

		if msg.ParentID != r.id || msg.Type != kernel.MsgExecuteReply {
			d.logger.Debug("discarding control message",
				"cell", r.cell.Index, "msg_type", msg.Type, "parent_id", msg.ParentID)
			continue
		}
		if msg.Content.Status == kernel.ReplyAborted {
			return false, r.fail(ErrCodeAbortedRequest, nil, "interpreter aborted the execute request")
		}
		return false, nil
	}
}

func (r *cellRun) interruptOnTimeout(ctx context.Context) bool {
	d := r.driver
	d.logger.Warn("execute reply timed out, interrupting kernel",
		"cell", r.cell.Index, "timeout", d.execTimeout)
	if err := d.transport.Interrupt(ctx); err != nil {
		d.logger.Warn("interrupt failed", "cell", r.cell.Index, "error", err)
	}
	r.state.Poison()
	return true
}

// drain collects side-effect messages until the interpreter reports idle.
func (r *cellRun) drain(ctx context.Context, interrupted bool) error {
	d := r.driver

	for {
		msg, err := d.transport.Poll(ctx, kernel.Broadcast, d.idleTimeout)
		if errors.Is(err, kernel.ErrTimeout) {
			return r.drainTimeout(interrupted)
		}
		if err != nil {
			return r.fail(ErrCodeTransportFailure, err, "reading output: %v", err)
		}

		if msg.ParentID != r.id {
			d.logger.Debug("discarding broadcast message",
				"cell", r.cell.Index, "msg_type", msg.Type, "parent_id", msg.ParentID)
			continue
		}

		switch msg.Type {
		case kernel.MsgStatus:
			if msg.Content.ExecutionState == kernel.StateIdle {
				return nil
			}
		case kernel.MsgExecuteInput, kernel.MsgExecuteReply:
		case kernel.MsgClearOutput:
			if msg.Content.Wait {
				r.pendingClear = true
			} else {
				r.outputs = nil
				r.pendingClear = false
			}
		case kernel.MsgDisplayData, kernel.MsgExecuteResult:
			datum := ir.DisplayDatum{
				Metadata: maps.Clone(msg.Content.Metadata),
				Data:     maps.Clone(msg.Content.Data),
			}
			if msg.Type == kernel.MsgExecuteResult && msg.Content.ExecutionCount != nil {
				n := *msg.Content.ExecutionCount
				datum.ExecutionCount = &n
			}
			r.append(datum)
		case kernel.MsgStream:
			r.append(ir.Stream{Name: msg.Content.Name, Text: msg.Content.Text})
		case kernel.MsgError:
			rec := ir.ErrorOutput{
				Ename:     msg.Content.Ename,
				Evalue:    msg.Content.Evalue,
				Traceback: append([]string(nil), msg.Content.Traceback...),
			}
			r.raised = &rec
			r.append(rec)
		default:
			if !msg.Type.IsComm() {
				d.logger.Debug("ignoring message", "cell", r.cell.Index, "msg_type", msg.Type)
			}
		}
	}
}

func (r *cellRun) append(rec ir.OutputRecord) {
	if r.pendingClear {
		r.outputs = nil
		r.pendingClear = false
	}
	r.outputs = append(r.outputs, rec)
}

func (r *cellRun) drainTimeout(interrupted bool) error {
	d := r.driver

	if interrupted {
		d.logger.Warn("interrupt did not land, stopping kernel", "cell", r.cell.Index)
		if err := d.transport.Stop(); err != nil {
			d.logger.Warn("stop failed", "cell", r.cell.Index, "error", err)
		}
		e := r.fail(ErrCodeInterruptTimeout, nil,
			"timeout of %s exceeded executing cell; the kernel could not be interrupted within %s and was stopped",
			d.execTimeout, d.idleTimeout)
		e.Traceback = ""
		return e
	}

	r.state.Poison()
	if !d.transport.Alive() {
		return r.fail(ErrCodeDrainTimeout, nil, "timed out waiting for cell output; the kernel died")
	}
	return r.fail(ErrCodeDrainTimeout, nil, "timed out waiting for cell output after %s", d.idleTimeout)
}
