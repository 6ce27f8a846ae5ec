package ir

// Cell is one code cell of a notebook, numbered among code cells only.
// Cells are immutable once loaded.
type Cell struct {
	Index   int            `json:"index" yaml:"index"`
	Source  string         `json:"source" yaml:"source"`
	Outputs []OutputRecord `json:"-" yaml:"-"`
	Tags    []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Policy  CellPolicy     `json:"policy" yaml:"policy"`
}

// CellPolicy is the resolved execution policy of a cell.
type CellPolicy struct {
	// Skip means the cell is not executed at all.
	Skip bool `json:"skip" yaml:"skip"`

	// Check means produced outputs are compared against the reference.
	Check bool `json:"check" yaml:"check"`

	// CheckException means an interpreter error is expected. The error
	// record takes part in comparison instead of failing the cell.
	CheckException bool `json:"check_exception" yaml:"check_exception"`
}
