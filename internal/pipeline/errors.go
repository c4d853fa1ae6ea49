package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/hed1ad/fraudguard/pkg/dataset"
	"github.com/hed1ad/fraudguard/pkg/io/csv"
)

// MissingInputError reports an input file a stage could not find.
type MissingInputError struct {
	Stage string
	Path  string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: input file not found at %q", e.Stage, e.Path)
}

// Unwrap lets callers match the error with errors.Is(err, fs.ErrNotExist).
func (e *MissingInputError) Unwrap() error {
	return fs.ErrNotExist
}

// MissingFeaturesError reports trained feature names absent from the
// prediction input.
type MissingFeaturesError struct {
	Missing []string
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("input data is missing required features: %s", strings.Join(e.Missing, ", "))
}

// wrap prefixes err with the stage name unless it already carries one of
// the typed errors above.
func wrap(stage string, err error) error {
	if err == nil {
		return nil
	}
	var missingInput *MissingInputError
	if errors.As(err, &missingInput) {
		return err
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// missingInput converts a not-exist error into a MissingInputError naming
// the file that was absent, or path when the error does not say.
func missingInput(stage, path string, err error) error {
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		path = pathErr.Path
	}
	return &MissingInputError{Stage: stage, Path: path}
}

// readTable loads a stage's CSV input.
func readTable(stage, path string) (*dataset.Table, error) {
	t, err := csv.ReadFile(path)
	if err != nil {
		return nil, missingInput(stage, path, err)
	}
	return t, nil
}
