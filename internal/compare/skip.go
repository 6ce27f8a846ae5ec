package compare

import "slices"

// CanonicalSkipFields are never compared by default.
var CanonicalSkipFields = []string{
	"metadata",
	"traceback",
	"execution_count",
	"name",
	"output_type",
	"prompt_number",
}

// ImageFields hold binary image payloads. They are skipped unless rich
// diffing is requested.
var ImageFields = []string{
	"image/png",
	"image/jpeg",
	"image/svg+xml",
}

// SkipSet is a set of field names excluded from comparison. A stream name
// such as "stderr" in the set excludes that stream entirely.
type SkipSet map[string]struct{}

// NewSkipSet builds a SkipSet from field names.
func NewSkipSet(fields ...string) SkipSet {
	s := make(SkipSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// DefaultSkip returns the canonical skip set. Image payloads are included
// unless keepImages is set.
func DefaultSkip(keepImages bool) SkipSet {
	s := NewSkipSet(CanonicalSkipFields...)
	if !keepImages {
		for _, f := range ImageFields {
			s[f] = struct{}{}
		}
	}
	return s
}

// Has reports whether field is skipped.
func (s SkipSet) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// With returns a copy of s extended with fields.
func (s SkipSet) With(fields ...string) SkipSet {
	out := make(SkipSet, len(s)+len(fields))
	for f := range s {
		out[f] = struct{}{}
	}
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

// Fields returns the skipped field names in sorted order.
func (s SkipSet) Fields() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
