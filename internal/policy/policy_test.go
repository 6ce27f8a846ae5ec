package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/nbverify/internal/ir"
)

func TestResolveDefaults(t *testing.T) {
	assert.Equal(t, ir.CellPolicy{Check: true}, Resolve("print(1)", nil, false).Policy)
	assert.Equal(t, ir.CellPolicy{Check: false}, Resolve("print(1)", nil, true).Policy)
}

func TestResolveMarkers(t *testing.T) {
	tests := []struct {
		name   string
		source string
		lax    bool
		want   ir.CellPolicy
	}{
		{"ignore output", "# NBVAL_IGNORE_OUTPUT\nprint(1)", false, ir.CellPolicy{}},
		{"legacy ignore", "#PYTEST_VALIDATE_IGNORE_OUTPUT\nprint(1)", false, ir.CellPolicy{}},
		{"check in lax mode", "# NBVAL_CHECK_OUTPUT\nprint(1)", true, ir.CellPolicy{Check: true}},
		{"raises", "## NBVAL_RAISES_EXCEPTION\nraise ValueError", false, ir.CellPolicy{Check: true, CheckException: true}},
		{"skip", "  # NBVAL_SKIP  \nwhile True: pass", false, ir.CellPolicy{Check: true, Skip: true}},
		{"marker later in cell", "x = 1\n# NBVAL_IGNORE_OUTPUT", false, ir.CellPolicy{}},
		{"trailing comment is not a marker", "x = 1  # NBVAL_SKIP", false, ir.CellPolicy{Check: true}},
		{"unknown marker", "# NBVAL_SOMETHING", false, ir.CellPolicy{Check: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(tt.source, nil, tt.lax)
			assert.Equal(t, tt.want, res.Policy)
			assert.Empty(t, res.Warnings)
		})
	}
}

func TestResolveTags(t *testing.T) {
	assert.Equal(t, ir.CellPolicy{}, Resolve("x", []string{"nbval-ignore-output"}, false).Policy)
	assert.Equal(t, ir.CellPolicy{Check: true, CheckException: true}, Resolve("x", []string{"raises-exception"}, false).Policy)
	assert.Equal(t, ir.CellPolicy{Check: true, Skip: true}, Resolve("x", []string{"NBVAL_SKIP"}, false).Policy)
	assert.Equal(t, ir.CellPolicy{Check: true}, Resolve("x", []string{"nbval-check-output"}, true).Policy)
	assert.Equal(t, ir.CellPolicy{Check: true}, Resolve("x", []string{"unrelated"}, false).Policy)
}

func TestResolveCommentOverridesTag(t *testing.T) {
	res := Resolve("# NBVAL_CHECK_OUTPUT\nx", []string{"nbval-ignore-output"}, false)
	assert.True(t, res.Policy.Check)
	assert.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "NBVAL_CHECK_OUTPUT")
}

func TestResolveAgreeingSourcesDoNotWarn(t *testing.T) {
	res := Resolve("# NBVAL_SKIP\nx", []string{"nbval-skip"}, false)
	assert.True(t, res.Policy.Skip)
	assert.Empty(t, res.Warnings)
}

func TestResolveLaterCommentWins(t *testing.T) {
	res := Resolve("# NBVAL_IGNORE_OUTPUT\n# NBVAL_CHECK_OUTPUT\nx", nil, false)
	assert.True(t, res.Policy.Check)
	assert.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "using the latest")
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "nbval-ignore-output", NormalizeTag(" NBVAL_Ignore_Output "))
	assert.True(t, IsMarkerTag("Raises_Exception"))
	assert.False(t, IsMarkerTag("slow"))
}
