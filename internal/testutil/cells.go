package testutil

import "github.com/roach88/nbverify/internal/ir"

// Cell builds a checked cell with the given reference outputs.
func Cell(index int, source string, outputs ...ir.OutputRecord) ir.Cell {
	return ir.Cell{
		Index:   index,
		Source:  source,
		Outputs: outputs,
		Policy:  ir.CellPolicy{Check: true},
	}
}

// Stdout builds a stdout stream record.
func Stdout(text string) ir.Stream {
	return ir.Stream{Name: ir.StreamStdout, Text: text}
}

// Plain builds a display record with a text/plain payload.
func Plain(text string) ir.DisplayDatum {
	return ir.DisplayDatum{Data: map[string]string{"text/plain": text}, Metadata: map[string]string{}}
}

// Raised builds an error record.
func Raised(ename, evalue string) ir.ErrorOutput {
	return ir.ErrorOutput{Ename: ename, Evalue: evalue}
}
