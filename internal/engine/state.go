package engine

// State is a phase of the per-cell execution state machine.
//
//	Idle -> Submitted -> AwaitingReply -> Draining -> Terminal
type State int

const (
	StateIdle State = iota
	StateSubmitted
	StateAwaitingReply
	StateDraining
	StateTerminal
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitted:
		return "submitted"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateDraining:
		return "draining"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// FileRunState is shared by all cells of one file run.
//
// The poisoned flag is set the first time a cell times out and never
// resets. Cells of one file run sequentially, so no locking is needed.
type FileRunState struct {
	poisoned bool
}

// Poison marks the file run as poisoned.
func (s *FileRunState) Poison() {
	s.poisoned = true
}

// Poisoned reports whether an earlier cell timed out.
func (s *FileRunState) Poisoned() bool {
	return s.poisoned
}
