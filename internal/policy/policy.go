// Package policy resolves a cell's execution policy from inline comment
// markers in its source and from its metadata tags.
package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/nbverify/internal/ir"
)

// Category is one independent dimension of a cell policy.
type Category string

const (
	CategoryCheck          Category = "check"
	CategoryCheckException Category = "check_exception"
	CategorySkip           Category = "skip"
)

// setting is the effect of one marker.
type setting struct {
	category Category
	value    bool
}

// Comment markers, matched against whole comment lines with the leading
// '#' characters and surrounding whitespace removed.
var markers = map[string]setting{
	"NBVAL_IGNORE_OUTPUT":           {CategoryCheck, false},
	"PYTEST_VALIDATE_IGNORE_OUTPUT": {CategoryCheck, false},
	"NBVAL_CHECK_OUTPUT":            {CategoryCheck, true},
	"NBVAL_RAISES_EXCEPTION":        {CategoryCheckException, true},
	"NBVAL_SKIP":                    {CategorySkip, true},
}

// tags holds the tag vocabulary: every marker lower-cased and hyphenated,
// plus the plain "raises-exception" tag.
var tags = func() map[string]setting {
	out := make(map[string]setting, len(markers)+1)
	for k, v := range markers {
		out[NormalizeTag(k)] = v
	}
	out["raises-exception"] = setting{CategoryCheckException, true}
	return out
}()

// NormalizeTag lower-cases a tag and replaces underscores with hyphens.
func NormalizeTag(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "_", "-")
}

// Resolution is a resolved policy plus any conflict warnings.
type Resolution struct {
	Policy   ir.CellPolicy
	Warnings []string
}

// Resolve merges markers found in source with tags. Comment markers win
// over tags; within one source the later marker wins. Check defaults to
// !lax when neither source sets it.
func Resolve(source string, cellTags []string, lax bool) Resolution {
	var warnings []string

	fromComments, names := commentSettings(source, &warnings)
	fromTags := tagSettings(cellTags)

	for _, c := range sortedCategories(fromComments) {
		if v, ok := fromTags[c]; ok && v != fromComments[c] {
			warnings = append(warnings, fmt.Sprintf(
				"conflicting %s options: comment %s overrides cell tag, using %t",
				c, names[c], fromComments[c]))
		}
	}

	merged := fromTags
	for c, v := range fromComments {
		merged[c] = v
	}

	p := ir.CellPolicy{Check: !lax}
	if v, ok := merged[CategoryCheck]; ok {
		p.Check = v
	}
	p.CheckException = merged[CategoryCheckException]
	p.Skip = merged[CategorySkip]

	return Resolution{Policy: p, Warnings: warnings}
}

func commentSettings(source string, warnings *[]string) (map[Category]bool, map[Category]string) {
	found := map[Category]bool{}
	names := map[Category]string{}
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		comment := strings.TrimSpace(strings.TrimLeft(line, "#"))
		s, ok := markers[comment]
		if !ok {
			continue
		}
		if prev, dup := names[s.category]; dup {
			*warnings = append(*warnings, fmt.Sprintf(
				"conflicting comment markers, using the latest: %s vs %s", prev, comment))
		}
		found[s.category] = s.value
		names[s.category] = comment
	}
	return found, names
}

func tagSettings(cellTags []string) map[Category]bool {
	found := map[Category]bool{}
	for _, t := range cellTags {
		if s, ok := tags[NormalizeTag(t)]; ok {
			found[s.category] = s.value
		}
	}
	return found
}

func sortedCategories(m map[Category]bool) []Category {
	out := make([]Category, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// IsMarkerTag reports whether tag belongs to the policy vocabulary.
func IsMarkerTag(tag string) bool {
	_, ok := tags[NormalizeTag(tag)]
	return ok
}
