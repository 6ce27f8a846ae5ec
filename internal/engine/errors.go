package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/nbverify/internal/compare"
	"github.com/roach88/nbverify/internal/ir"
)

// CellError represents a failure while running or verifying one cell.
//
// Cell errors include:
//   - Timeouts: no reply, no idle status, or an interrupt that never landed
//   - Interpreter errors: the cell raised and no exception was expected
//   - Protocol violations: the interpreter aborted the request
//   - Output mismatches: outputs disagree with the reference
//
// CellError carries everything needed to report the failure.
type CellError struct {
	// Code identifies the error category.
	Code ErrorCode

	// CellIndex is the 0-based index of the cell among code cells.
	CellIndex int

	// Source is the cell's source text.
	Source string

	// Message is a human-readable description.
	Message string

	// Diagnostics explain an output mismatch.
	Diagnostics []compare.Diagnostic

	// Traceback is the interpreter traceback, if one was produced.
	Traceback string

	// Outputs are the records collected before the failure.
	Outputs []ir.OutputRecord

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes cell errors.
type ErrorCode string

const (
	// ErrCodeProtocolTimeout indicates no reply arrived within the execution
	// timeout; the interpreter was interrupted.
	ErrCodeProtocolTimeout ErrorCode = "PROTOCOL_TIMEOUT"

	// ErrCodeDrainTimeout indicates side-effect messages stopped arriving
	// before the interpreter reported idle.
	ErrCodeDrainTimeout ErrorCode = "DRAIN_TIMEOUT"

	// ErrCodeInterruptTimeout indicates an interrupt after a timeout did not
	// land; the interpreter was stopped.
	ErrCodeInterruptTimeout ErrorCode = "INTERRUPT_TIMEOUT"

	// ErrCodeInterpreterError indicates the cell raised unexpectedly.
	ErrCodeInterpreterError ErrorCode = "INTERPRETER_ERROR"

	// ErrCodeAbortedRequest indicates the interpreter refused the request.
	ErrCodeAbortedRequest ErrorCode = "ABORTED_REQUEST"

	// ErrCodeOutputMismatch indicates outputs disagree with the reference.
	ErrCodeOutputMismatch ErrorCode = "OUTPUT_MISMATCH"

	// ErrCodeMissingException indicates a cell expected to raise did not.
	ErrCodeMissingException ErrorCode = "MISSING_EXCEPTION"

	// ErrCodeTransportFailure indicates the transport itself failed.
	ErrCodeTransportFailure ErrorCode = "TRANSPORT_FAILURE"
)

// Error implements the error interface.
func (e *CellError) Error() string {
	return fmt.Sprintf("%s: %s (cell %d)", e.Code, e.Message, e.CellIndex)
}

// Unwrap returns the underlying cause.
func (e *CellError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error is one of the timeout codes.
func (e *CellError) Timeout() bool {
	switch e.Code {
	case ErrCodeProtocolTimeout, ErrCodeDrainTimeout, ErrCodeInterruptTimeout:
		return true
	}
	return false
}

// Fatal reports whether the file run cannot continue after this error.
func (e *CellError) Fatal() bool {
	return e.Code == ErrCodeAbortedRequest || e.Code == ErrCodeTransportFailure
}

// IsTimeoutError returns true if err is a timeout CellError.
// Uses errors.As to handle wrapped errors.
func IsTimeoutError(err error) bool {
	var ce *CellError
	return errors.As(err, &ce) && ce.Timeout()
}

// IsFatalError returns true if err is a CellError that ends the file run.
func IsFatalError(err error) bool {
	var ce *CellError
	return errors.As(err, &ce) && ce.Fatal()
}

// CodeOf returns the error code of err, or "" if err is not a CellError.
func CodeOf(err error) ErrorCode {
	var ce *CellError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func newCellError(code ErrorCode, cell ir.Cell, format string, args ...any) *CellError {
	return &CellError{
		Code:      code,
		CellIndex: cell.Index,
		Source:    cell.Source,
		Message:   fmt.Sprintf(format, args...),
	}
}

// NewMismatchError creates a CellError for an output mismatch.
func NewMismatchError(cell ir.Cell, outputs []ir.OutputRecord, diags []compare.Diagnostic) *CellError {
	e := newCellError(ErrCodeOutputMismatch, cell, "cell outputs differ from the reference")
	e.Diagnostics = diags
	e.Outputs = outputs
	return e
}
