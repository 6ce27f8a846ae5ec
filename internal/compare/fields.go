package compare

import (
	"github.com/roach88/nbverify/internal/ir"
	"github.com/roach88/nbverify/internal/sanitize"
)

// Field names produced by flattening.
const (
	FieldText      = "text"
	FieldMetadata  = "metadata"
	FieldEname     = "ename"
	FieldEvalue    = "evalue"
	FieldTraceback = "traceback"
)

// fieldMap is an insertion-ordered map of field name to concatenated value.
type fieldMap struct {
	order  []string
	values map[string]string
	raw    map[string]bool
}

func newFieldMap() *fieldMap {
	return &fieldMap{values: map[string]string{}, raw: map[string]bool{}}
}

func (m *fieldMap) add(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.order = append(m.order, key)
	}
	m.values[key] += value
}

// addRaw adds a non-text value that the sanitizer must not touch.
func (m *fieldMap) addRaw(key, value string) {
	m.add(key, value)
	m.raw[key] = true
}

func (m *fieldMap) has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// sanitized returns the value of key with rules applied.
func (m *fieldMap) sanitized(key string, s *sanitize.Sanitizer) string {
	v := m.values[key]
	if m.raw[key] {
		return v
	}
	return s.Apply(v)
}

// flatten merges records into a fieldMap, dropping skipped fields.
func flatten(records []ir.OutputRecord, skip SkipSet) *fieldMap {
	m := newFieldMap()
	for _, r := range records {
		switch rec := r.(type) {
		case ir.Stream:
			if skip.Has(rec.Name) || skip.Has(FieldText) {
				continue
			}
			m.add(FieldText, rec.Text)
		case ir.DisplayDatum:
			if !skip.Has(FieldMetadata) {
				m.addRaw(FieldMetadata, canonicalString(rec.Metadata))
			}
			for _, mime := range sortedKeys(rec.Data) {
				if skip.Has(mime) {
					continue
				}
				m.add(mime, rec.Data[mime])
			}
		case ir.ErrorOutput:
			if !skip.Has(FieldEname) {
				m.add(FieldEname, rec.Ename)
			}
			if !skip.Has(FieldEvalue) {
				m.add(FieldEvalue, rec.Evalue)
			}
			if !skip.Has(FieldTraceback) {
				m.add(FieldTraceback, rec.JoinedTraceback())
			}
		}
	}
	return m
}

func canonicalString(m map[string]string) string {
	if m == nil {
		m = map[string]string{}
	}
	b, err := ir.MarshalCanonical(m)
	if err != nil {
		// map[string]string always encodes
		panic(err)
	}
	return string(b)
}
