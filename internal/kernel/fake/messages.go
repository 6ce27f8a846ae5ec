package fake

import "github.com/roach88/nbverify/internal/kernel"

// Reply builds an execute_reply with the given status.
func Reply(status string) *kernel.Message {
	return &kernel.Message{Type: kernel.MsgExecuteReply, Content: kernel.Content{Status: status}}
}

// Status builds a status message.
func Status(state string) kernel.Message {
	return kernel.Message{Type: kernel.MsgStatus, Content: kernel.Content{ExecutionState: state}}
}

// Input builds the execute_input echo of source.
func Input(source string) kernel.Message {
	return kernel.Message{Type: kernel.MsgExecuteInput, Content: kernel.Content{Text: source}}
}

// Stream builds a stream chunk.
func Stream(name, text string) kernel.Message {
	return kernel.Message{Type: kernel.MsgStream, Content: kernel.Content{Name: name, Text: text}}
}

// Stdout builds a stdout chunk.
func Stdout(text string) kernel.Message { return Stream("stdout", text) }

// Stderr builds a stderr chunk.
func Stderr(text string) kernel.Message { return Stream("stderr", text) }

// Display builds a display_data message.
func Display(data map[string]string) kernel.Message {
	return kernel.Message{Type: kernel.MsgDisplayData, Content: kernel.Content{Data: data, Metadata: map[string]string{}}}
}

// Result builds an execute_result with a text/plain payload.
func Result(count int, text string) kernel.Message {
	return kernel.Message{Type: kernel.MsgExecuteResult, Content: kernel.Content{
		Data:           map[string]string{"text/plain": text},
		Metadata:       map[string]string{},
		ExecutionCount: &count,
	}}
}

// Error builds an error message.
func Error(ename, evalue string, traceback ...string) kernel.Message {
	return kernel.Message{Type: kernel.MsgError, Content: kernel.Content{
		Ename: ename, Evalue: evalue, Traceback: traceback,
	}}
}

// ClearOutput builds a clear_output message.
func ClearOutput(wait bool) kernel.Message {
	return kernel.Message{Type: kernel.MsgClearOutput, Content: kernel.Content{Wait: wait}}
}

// Comm builds a widget comm message.
func Comm() kernel.Message {
	return kernel.Message{Type: kernel.MsgType("comm_msg")}
}

// OK scripts a successful execution emitting msgs between busy and idle.
func OK(msgs ...kernel.Message) Script {
	b := []kernel.Message{Status(kernel.StateBusy)}
	b = append(b, msgs...)
	b = append(b, Status(kernel.StateIdle))
	return Script{Reply: Reply(kernel.ReplyOK), Broadcast: b}
}

// Raises scripts an execution that raises an error after msgs.
func Raises(ename, evalue string, msgs ...kernel.Message) Script {
	b := []kernel.Message{Status(kernel.StateBusy)}
	b = append(b, msgs...)
	b = append(b, Error(ename, evalue, "Traceback (most recent call last):", ename+": "+evalue), Status(kernel.StateIdle))
	return Script{Reply: Reply(kernel.ReplyError), Broadcast: b}
}

// Hang scripts an execution that never replies but responds to an
// interrupt with a KeyboardInterrupt error.
func Hang(msgs ...kernel.Message) Script {
	b := []kernel.Message{Status(kernel.StateBusy)}
	b = append(b, msgs...)
	return Script{
		Broadcast: b,
		OnInterrupt: []kernel.Message{
			Error("KeyboardInterrupt", "", "Traceback (most recent call last):", "KeyboardInterrupt"),
			Status(kernel.StateIdle),
		},
	}
}

// HangForever scripts an execution that ignores interrupts.
func HangForever() Script {
	return Script{Broadcast: []kernel.Message{Status(kernel.StateBusy)}}
}

// Aborted scripts a request the interpreter refused to run.
func Aborted() Script {
	return Script{Reply: Reply(kernel.ReplyAborted)}
}
