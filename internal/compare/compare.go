package compare

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/nbverify/internal/ir"
	"github.com/roach88/nbverify/internal/sanitize"
)

// DiagnosticKind classifies a diagnostic line for rendering.
type DiagnosticKind int

const (
	DiagMissingKey DiagnosticKind = iota
	DiagMismatch
	DiagReferenceBanner
	DiagTestBanner
	DiagValue
	DiagEnd
)

// Diagnostic is one line of a comparison trace.
type Diagnostic struct {
	Kind DiagnosticKind
	Text string
}

// String returns the diagnostic text.
func (d Diagnostic) String() string { return d.Text }

// Result is the outcome of comparing a cell's outputs.
type Result struct {
	Passed      bool
	Diagnostics []Diagnostic
}

// Options controls a comparison.
type Options struct {
	// Skip excludes fields; nil compares every field.
	Skip SkipSet

	// Sanitizer is applied to both sides; nil applies no rules.
	Sanitizer *sanitize.Sanitizer
}

// Outputs compares test records against reference records.
func Outputs(test, reference []ir.OutputRecord, opts Options) Result {
	ref := flatten(reference, opts.Skip)
	got := flatten(test, opts.Skip)

	var missing []string
	for _, key := range ref.order {
		if !got.has(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Result{Diagnostics: []Diagnostic{{
			Kind: DiagMissingKey,
			Text: fmt.Sprintf("missing key %s: TESTING %s != REFERENCE %s",
				strings.Join(missing, ", "), keyList(got.order), keyList(ref.order)),
		}}}
	}

	for _, key := range ref.order {
		want := ref.sanitized(key, opts.Sanitizer)
		have := got.sanitized(key, opts.Sanitizer)
		if want == have {
			continue
		}
		return Result{Diagnostics: []Diagnostic{
			{Kind: DiagMismatch, Text: fmt.Sprintf("mismatch '%s'", key)},
			{Kind: DiagReferenceBanner, Text: "<<<<<<<<<<<< Reference output from notebook:"},
			{Kind: DiagValue, Text: AbbreviateBase64(want)},
			{Kind: DiagTestBanner, Text: "============ disagrees with newly computed (test) output:"},
			{Kind: DiagValue, Text: AbbreviateBase64(have)},
			{Kind: DiagEnd, Text: ">>>>>>>>>>>>"},
		}}
	}

	return Result{Passed: true}
}

func keyList(keys []string) string {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	return "[" + strings.Join(sorted, ", ") + "]"
}

var base64Pattern = regexp.MustCompile(`^(?:[A-Za-z0-9+/]{4})*(?:[A-Za-z0-9+/]{2}==|[A-Za-z0-9+/]{3}=)?$`)

// AbbreviateBase64 shortens long base64 payloads to a prefix and digest.
// Other values are returned unchanged.
func AbbreviateBase64(s string) string {
	flat := strings.ReplaceAll(s, "\n", "")
	if len(flat) <= 64 || !base64Pattern.MatchString(flat) {
		return s
	}
	return fmt.Sprintf("%s...<snip base64, sha256=%s...>", flat[:8], ir.BlobDigest(s)[:16])
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
