package ir

import (
	"fmt"
	"strings"
)

// OutputType names the kind of an OutputRecord.
type OutputType string

const (
	OutputStream        OutputType = "stream"
	OutputDisplayData   OutputType = "display_data"
	OutputExecuteResult OutputType = "execute_result"
	OutputError         OutputType = "error"
)

// Stream names.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// OutputRecord is one element of a cell's output sequence.
// Only Stream, DisplayDatum, and ErrorOutput implement it.
type OutputRecord interface {
	outputRecord()

	// Type returns the record's output type.
	Type() OutputType
}

// Stream is one chunk of text written to stdout or stderr.
// Consecutive chunks are not merged; comparison concatenates them.
type Stream struct {
	Name string
	Text string
}

func (Stream) outputRecord() {}

// Type returns OutputStream.
func (Stream) Type() OutputType { return OutputStream }

// DisplayDatum is a rich display payload keyed by MIME type.
// ExecutionCount is set only for execute results and never compared.
type DisplayDatum struct {
	Metadata       map[string]string
	Data           map[string]string
	ExecutionCount *int
}

func (DisplayDatum) outputRecord() {}

// Type returns OutputExecuteResult when an execution count is present,
// OutputDisplayData otherwise.
func (d DisplayDatum) Type() OutputType {
	if d.ExecutionCount != nil {
		return OutputExecuteResult
	}
	return OutputDisplayData
}

// ErrorOutput is an exception raised by the interpreter.
type ErrorOutput struct {
	Ename     string
	Evalue    string
	Traceback []string
}

func (ErrorOutput) outputRecord() {}

// Type returns OutputError.
func (ErrorOutput) Type() OutputType { return OutputError }

// JoinedTraceback returns the traceback lines joined by newlines.
func (e ErrorOutput) JoinedTraceback() string {
	return strings.Join(e.Traceback, "\n")
}

// RecordToMap converts a record to a plain map suitable for MarshalCanonical.
func RecordToMap(r OutputRecord) (map[string]any, error) {
	switch rec := r.(type) {
	case Stream:
		return map[string]any{
			"output_type": string(OutputStream),
			"name":        rec.Name,
			"text":        rec.Text,
		}, nil
	case DisplayDatum:
		m := map[string]any{
			"output_type": string(rec.Type()),
			"data":        stringMap(rec.Data),
			"metadata":    stringMap(rec.Metadata),
		}
		if rec.ExecutionCount != nil {
			m["execution_count"] = *rec.ExecutionCount
		}
		return m, nil
	case ErrorOutput:
		tb := make([]any, len(rec.Traceback))
		for i, line := range rec.Traceback {
			tb[i] = line
		}
		return map[string]any{
			"output_type": string(OutputError),
			"ename":       rec.Ename,
			"evalue":      rec.Evalue,
			"traceback":   tb,
		}, nil
	case nil:
		return nil, fmt.Errorf("nil output record")
	default:
		return nil, fmt.Errorf("unknown output record type %T", r)
	}
}

// RecordsToList converts a record sequence for MarshalCanonical, keeping order.
func RecordsToList(records []OutputRecord) ([]any, error) {
	out := make([]any, len(records))
	for i, r := range records {
		m, err := RecordToMap(r)
		if err != nil {
			return nil, fmt.Errorf("record[%d]: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}

func stringMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
