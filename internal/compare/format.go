package compare

import (
	"strings"

	"github.com/fatih/color"
)

// Format renders diagnostics one per line. Color escapes are emitted only
// when useColor is set; the result does not depend on the terminal.
func Format(diags []Diagnostic, useColor bool) string {
	var b strings.Builder
	for _, d := range diags {
		if c := paint(d.Kind, useColor); c != nil {
			b.WriteString(c.Sprint(d.Text))
		} else {
			b.WriteString(d.Text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func paint(kind DiagnosticKind, useColor bool) *color.Color {
	var c *color.Color
	switch kind {
	case DiagMissingKey, DiagMismatch:
		c = color.New(color.FgRed, color.Bold)
	case DiagReferenceBanner, DiagTestBanner, DiagEnd:
		c = color.New(color.FgBlue)
	default:
		return nil
	}
	if useColor {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}
