// Package compare reconciles the output records a cell produced against
// the reference records stored with it.
//
// Records are flattened into an ordered map of field name to concatenated,
// sanitized value before comparison:
//   - every MIME key of a DisplayDatum is its own field, plus "metadata"
//   - every stream chunk contributes to the "text" field, in emission order
//   - an ErrorOutput contributes "ename", "evalue", and "traceback"
//
// A reference field missing from the test output fails the comparison.
// Fields present only in the test output are ignored. Diagnostics never
// influence the verdict; long base64 payloads are abbreviated in them.
package compare
