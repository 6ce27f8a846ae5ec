package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/nbverify/internal/compare"
	"github.com/roach88/nbverify/internal/ir"
)

// storedDiagnostic is the row shape of one diagnostic line.
type storedDiagnostic struct {
	Kind int    `json:"kind"`
	Text string `json:"text"`
}

// marshalDiagnostics converts diagnostics to canonical JSON TEXT for storage.
func marshalDiagnostics(diags []compare.Diagnostic) (string, error) {
	list := make([]any, len(diags))
	for i, d := range diags {
		list[i] = map[string]any{
			"kind": int(d.Kind),
			"text": d.Text,
		}
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal diagnostics: %w", err)
	}
	return string(data), nil
}

// unmarshalDiagnostics parses stored diagnostics. Empty input yields nil.
func unmarshalDiagnostics(data string) ([]compare.Diagnostic, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var stored []storedDiagnostic
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	diags := make([]compare.Diagnostic, len(stored))
	for i, d := range stored {
		diags[i] = compare.Diagnostic{Kind: compare.DiagnosticKind(d.Kind), Text: d.Text}
	}
	return diags, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
