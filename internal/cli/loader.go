package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/nbverify/internal/harness"
)

// Error codes for CLI responses.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeScanError  = "E002" // Directory scan error
	ErrCodeNoFiles    = "E003" // No notebook fixtures found
	ErrCodeLoadFailed = "E004" // Fixture failed to load
	ErrCodeNotFound   = "E005" // Path not found
	ErrCodeConfig     = "E006" // Invalid configuration
	ErrCodeStore      = "E007" // History database error
	ErrCodeKernel     = "E008" // Kernel could not be started
	ErrCodeRules      = "E009" // Sanitize rules could not be parsed
)

// LoadError represents an error that occurred while loading fixtures.
type LoadError struct {
	Code    string
	Message string
	Path    string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// notebookExts are the fixture extensions picked up from directories.
var notebookExts = []string{".yaml", ".yml", ".cue"}

// FindNotebooks expands paths into fixture files. Files are taken as
// given; directories are walked for fixture extensions. The result is
// sorted and free of duplicates.
func FindNotebooks(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: "path not found", Path: p}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error(), Path: p}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if slices.Contains(notebookExts, strings.ToLower(filepath.Ext(path))) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: err.Error(), Path: p}
		}
	}

	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no notebook fixtures found"}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// LoadNotebooks finds and loads every fixture, stopping at the first
// load failure.
func LoadNotebooks(paths []string, lax bool) ([]*harness.Notebook, error) {
	files, err := FindNotebooks(paths)
	if err != nil {
		return nil, err
	}

	notebooks := make([]*harness.Notebook, 0, len(files))
	for _, f := range files {
		nb, err := harness.LoadNotebook(f, lax)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Path: f}
		}
		notebooks = append(notebooks, nb)
	}
	return notebooks, nil
}
