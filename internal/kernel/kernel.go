// Package kernel defines the boundary to a running interpreter process.
//
// An interpreter is reached over two channels:
//   - Control: request/reply, one execute_reply per submitted request
//   - Broadcast: asynchronous side-effect messages (status, streams,
//     displays, errors) for every request, tagged with the id of the
//     request that caused them
//
// Implementations live in subpackages: fake for scripted tests and jsonl
// for a JSON-lines subprocess.
package kernel

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Channel selects which message queue to poll.
type Channel int

const (
	Control Channel = iota
	Broadcast
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case Control:
		return "control"
	case Broadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// MsgType identifies a message.
type MsgType string

const (
	MsgExecuteReply  MsgType = "execute_reply"
	MsgExecuteInput  MsgType = "execute_input"
	MsgStatus        MsgType = "status"
	MsgStream        MsgType = "stream"
	MsgDisplayData   MsgType = "display_data"
	MsgExecuteResult MsgType = "execute_result"
	MsgError         MsgType = "error"
	MsgClearOutput   MsgType = "clear_output"
)

// IsComm reports whether t is a widget comm message (comm_open, comm_msg, ...).
func (t MsgType) IsComm() bool {
	return strings.HasPrefix(string(t), "comm")
}

// Execution states carried by status messages.
const (
	StateBusy = "busy"
	StateIdle = "idle"
)

// Reply statuses carried by execute_reply messages.
const (
	ReplyOK      = "ok"
	ReplyError   = "error"
	ReplyAborted = "aborted"
)

// Content holds the union of message payload fields. Which fields are set
// depends on the message type.
type Content struct {
	// status
	ExecutionState string `json:"execution_state,omitempty"`

	// execute_reply
	Status string `json:"status,omitempty"`

	// stream
	Name string `json:"name,omitempty"`
	Text string `json:"text,omitempty"`

	// display_data, execute_result
	Data           map[string]string `json:"data,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ExecutionCount *int              `json:"execution_count,omitempty"`

	// error
	Ename     string   `json:"ename,omitempty"`
	Evalue    string   `json:"evalue,omitempty"`
	Traceback []string `json:"traceback,omitempty"`

	// clear_output
	Wait bool `json:"wait,omitempty"`
}

// Message is one message received from the interpreter.
type Message struct {
	Type     MsgType `json:"msg_type"`
	ParentID string  `json:"parent_id"`
	Content  Content `json:"content"`
}

var (
	// ErrTimeout is returned by Poll when no message arrived in time.
	ErrTimeout = errors.New("kernel: poll timed out")

	// ErrNotAlive is returned when submitting to a stopped interpreter.
	ErrNotAlive = errors.New("kernel: interpreter is not running")
)

// Transport is a connection to one running interpreter.
type Transport interface {
	// Submit sends source for execution and returns its correlation id.
	Submit(ctx context.Context, source string) (string, error)

	// Poll waits up to timeout for the next message on ch. It returns
	// ErrTimeout when none arrived.
	Poll(ctx context.Context, ch Channel, timeout time.Duration) (Message, error)

	// Interrupt asks the interpreter to abandon the running request.
	Interrupt(ctx context.Context) error

	// Stop forcibly terminates the interpreter.
	Stop() error

	// Alive reports whether the interpreter is still running.
	Alive() bool
}
