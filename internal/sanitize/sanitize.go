// Package sanitize rewrites output text with ordered regular-expression
// rules so that nondeterministic fragments (dates, addresses, timings)
// compare equal across runs.
//
// A rule file is a sequence of line pairs:
//
//	regex: <pattern>
//	replace: <replacement>
//
// Other lines, such as [section] headers or comments, are ignored.
// Replacements use Go regexp expansion syntax ($1, ${name}).
package sanitize

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Rule replaces every match of Pattern with Replacement.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Sanitizer applies rules in order. The zero value and a nil *Sanitizer
// apply no rules.
type Sanitizer struct {
	rules []Rule
}

// New creates a sanitizer from rules, applied in the given order.
func New(rules ...Rule) *Sanitizer {
	return &Sanitizer{rules: append([]Rule(nil), rules...)}
}

// MustRule compiles pattern into a Rule, panicking on an invalid pattern.
// Use only in tests or with constant patterns.
func MustRule(pattern, replacement string) Rule {
	return Rule{Pattern: regexp.MustCompile(pattern), Replacement: replacement}
}

// Rules returns a copy of the rule sequence.
func (s *Sanitizer) Rules() []Rule {
	if s == nil {
		return nil
	}
	return append([]Rule(nil), s.rules...)
}

// Len returns the number of rules.
func (s *Sanitizer) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Apply runs every rule over text; each rule sees the previous rule's output.
func (s *Sanitizer) Apply(text string) string {
	if s == nil {
		return text
	}
	for _, r := range s.rules {
		text = r.Pattern.ReplaceAllString(text, r.Replacement)
	}
	return text
}

// Value sanitizes v when it is a string and returns any other value unchanged.
func (s *Sanitizer) Value(v any) any {
	if str, ok := v.(string); ok {
		return s.Apply(str)
	}
	return v
}

var pairPattern = regexp.MustCompile(`(?m)^regex: (.*)$\n^replace: (.*)$`)

// ErrDanglingRegex is returned when a regex line has no replace line after it.
var ErrDanglingRegex = errors.New("regex line without a following replace line")

// ParseRules parses rule file text strictly: an invalid pattern or a regex
// line without its replace line is an error.
func ParseRules(text string) ([]Rule, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	matches := pairPattern.FindAllStringSubmatchIndex(text, -1)
	paired := make(map[int]bool, len(matches))
	rules := make([]Rule, 0, len(matches))
	for _, m := range matches {
		paired[m[0]] = true
		pattern := text[m[2]:m[3]]
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern %q: %w", len(rules)+1, pattern, err)
		}
		rules = append(rules, Rule{Pattern: re, Replacement: text[m[4]:m[5]]})
	}

	offset := 0
	for i, line := range strings.SplitAfter(text, "\n") {
		if strings.HasPrefix(line, "regex: ") && !paired[offset] {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrDanglingRegex)
		}
		offset += len(line)
	}
	return rules, nil
}

// Read parses rules from r strictly.
func Read(r io.Reader) (*Sanitizer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	rules, err := ParseRules(string(data))
	if err != nil {
		return nil, err
	}
	return New(rules...), nil
}

// Load reads a rule file leniently. An empty path yields no rules. A
// missing or unparsable file also yields no rules and logs a warning.
func Load(path string, logger *slog.Logger) *Sanitizer {
	if path == "" {
		return New()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("sanitize rules unavailable, continuing without rules", "path", path, "error", err)
		return New()
	}
	defer f.Close()

	s, err := Read(f)
	if err != nil {
		logger.Warn("sanitize rules unparsable, continuing without rules", "path", path, "error", err)
		return New()
	}
	logger.Debug("loaded sanitize rules", "path", path, "rules", s.Len())
	return s
}
