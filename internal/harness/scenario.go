package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/nbverify/internal/ir"
	"github.com/roach88/nbverify/internal/policy"
)

// Notebook is a loaded notebook: its code cells with resolved policies.
type Notebook struct {
	Name  string
	Path  string
	Cells []ir.Cell

	// Warnings are policy conflicts found while resolving cell policies.
	Warnings []string
}

// notebookFile is the on-disk fixture shape shared by YAML and CUE.
type notebookFile struct {
	// Name identifies the notebook in reports.
	Name string `yaml:"name" json:"name"`

	// Cells lists code and markdown cells in document order.
	Cells []cellFile `yaml:"cells" json:"cells"`
}

type cellFile struct {
	// CellType is "code" (default) or "markdown".
	CellType string `yaml:"cell_type,omitempty" json:"cell_type,omitempty"`

	Source string   `yaml:"source" json:"source"`
	Tags   []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Outputs are the reference outputs, in emission order.
	Outputs []outputFile `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

type outputFile struct {
	OutputType string `yaml:"output_type" json:"output_type"`

	// stream
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Text string `yaml:"text,omitempty" json:"text,omitempty"`

	// display_data, execute_result
	Data           map[string]string `yaml:"data,omitempty" json:"data,omitempty"`
	Metadata       map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	ExecutionCount *int              `yaml:"execution_count,omitempty" json:"execution_count,omitempty"`

	// error
	Ename     string   `yaml:"ename,omitempty" json:"ename,omitempty"`
	Evalue    string   `yaml:"evalue,omitempty" json:"evalue,omitempty"`
	Traceback []string `yaml:"traceback,omitempty" json:"traceback,omitempty"`
}

// Cell type constants.
const (
	CellCode     = "code"
	CellMarkdown = "markdown"
)

// LoadNotebook reads a notebook fixture (.yaml, .yml, or .cue) and resolves
// cell policies. lax turns output checking off unless a cell opts in.
//
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, or is missing required fields.
func LoadNotebook(path string, lax bool) (*Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notebook file: %w", err)
	}

	var nf notebookFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &nf)
	case ".cue":
		err = decodeCUE(path, data, &nf)
	default:
		return nil, fmt.Errorf("unsupported notebook format %q", ext)
	}
	if err != nil {
		return nil, err
	}

	if err := validateNotebook(&nf); err != nil {
		return nil, fmt.Errorf("invalid notebook: %w", err)
	}

	nb := buildNotebook(&nf, lax)
	nb.Path = path
	return nb, nil
}

func decodeYAML(data []byte, nf *notebookFile) error {
	// Strict fields catch typos like "output:" vs "outputs:"
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(nf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func decodeCUE(path string, data []byte, nf *notebookFile) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return fmt.Errorf("failed to compile CUE: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("CUE notebook is not concrete: %w", err)
	}
	if err := v.Decode(nf); err != nil {
		return fmt.Errorf("failed to decode CUE: %w", err)
	}
	return nil
}

// validateNotebook checks that required fields are present and valid.
func validateNotebook(nf *notebookFile) error {
	if nf.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(nf.Cells) == 0 {
		return fmt.Errorf("cells list is required and must be non-empty")
	}

	for i, c := range nf.Cells {
		switch c.CellType {
		case "", CellCode:
		case CellMarkdown:
			if len(c.Outputs) > 0 {
				return fmt.Errorf("cells[%d]: markdown cells have no outputs", i)
			}
			continue
		default:
			return fmt.Errorf("cells[%d]: unknown cell_type %q", i, c.CellType)
		}
		for j, o := range c.Outputs {
			if err := validateOutput(o); err != nil {
				return fmt.Errorf("cells[%d].outputs[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

func validateOutput(o outputFile) error {
	switch ir.OutputType(o.OutputType) {
	case ir.OutputStream:
		if o.Name != ir.StreamStdout && o.Name != ir.StreamStderr {
			return fmt.Errorf("stream name must be stdout or stderr, got %q", o.Name)
		}
	case ir.OutputDisplayData:
		if o.ExecutionCount != nil {
			return fmt.Errorf("display_data has no execution_count")
		}
	case ir.OutputExecuteResult:
	case ir.OutputError:
		if o.Ename == "" {
			return fmt.Errorf("ename is required for error outputs")
		}
	case "":
		return fmt.Errorf("output_type is required")
	default:
		return fmt.Errorf("unknown output_type %q", o.OutputType)
	}
	return nil
}

func buildNotebook(nf *notebookFile, lax bool) *Notebook {
	nb := &Notebook{Name: nf.Name}
	for _, c := range nf.Cells {
		if c.CellType == CellMarkdown {
			continue
		}
		index := len(nb.Cells)
		res := policy.Resolve(c.Source, c.Tags, lax)
		for _, w := range res.Warnings {
			nb.Warnings = append(nb.Warnings, fmt.Sprintf("cell %d: %s", index, w))
		}
		nb.Cells = append(nb.Cells, ir.Cell{
			Index:   index,
			Source:  c.Source,
			Outputs: convertOutputs(c.Outputs),
			Tags:    c.Tags,
			Policy:  res.Policy,
		})
	}
	return nb
}

func convertOutputs(outs []outputFile) []ir.OutputRecord {
	records := make([]ir.OutputRecord, 0, len(outs))
	for _, o := range outs {
		switch ir.OutputType(o.OutputType) {
		case ir.OutputStream:
			records = append(records, ir.Stream{Name: o.Name, Text: o.Text})
		case ir.OutputDisplayData, ir.OutputExecuteResult:
			d := ir.DisplayDatum{Metadata: o.Metadata, Data: o.Data}
			if ir.OutputType(o.OutputType) == ir.OutputExecuteResult {
				n := 0
				if o.ExecutionCount != nil {
					n = *o.ExecutionCount
				}
				d.ExecutionCount = &n
			}
			records = append(records, d)
		case ir.OutputError:
			records = append(records, ir.ErrorOutput{Ename: o.Ename, Evalue: o.Evalue, Traceback: o.Traceback})
		}
	}
	return records
}
