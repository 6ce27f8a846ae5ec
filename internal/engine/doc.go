// Package engine drives the execution of one cell on a kernel.
//
// A Driver submits the cell source, waits for the matching execute reply,
// then drains broadcast messages until the kernel reports idle, collecting
// outputs in emission order. Messages whose parent id belongs to an
// earlier request are discarded.
//
// STATE MACHINE:
//
//	Idle -> Submitted -> AwaitingReply -> Draining -> Terminal
//
// Any state may end in a CellError instead of Terminal.
//
// TIMEOUTS:
//
// The exec timeout bounds the wait for the reply, across any number of
// discarded stale replies. When it expires the kernel is interrupted, the
// file run is poisoned, and draining continues so the interrupt's output
// is captured. If draining then times out the kernel is stopped
// (INTERRUPT_TIMEOUT). The idle timeout bounds each broadcast wait; when
// it expires without an interrupt the file run is poisoned (DRAIN_TIMEOUT).
//
// A FileRunState is shared by every cell of a file and, once poisoned,
// stays poisoned.
//
// FATAL ERRORS:
//
// ABORTED_REQUEST and TRANSPORT_FAILURE end the file run. Every other code
// is a per-cell failure.
package engine
