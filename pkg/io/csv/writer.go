package csv

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/hed1ad/fraudguard/pkg/dataset"
	pkgio "github.com/hed1ad/fraudguard/pkg/io"
)

var _ pkgio.Writer = (*Writer)(nil)

// Writer persists tables as headed CSV files. Every Write replaces the
// destination atomically.
type Writer struct {
	path string
}

// NewWriter creates a writer targeting path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write outputs the whole table.
func (w *Writer) Write(t *dataset.Table) error {
	return pkgio.WriteFileAtomic(w.path, func(out io.Writer) error {
		return Encode(out, t)
	})
}

// WriteFile is shorthand for NewWriter(path).Write(t).
func WriteFile(path string, t *dataset.Table) error {
	return NewWriter(path).Write(t)
}

// Encode writes t as CSV to out. Values use the shortest representation
// that parses back to the same float64.
func Encode(out io.Writer, t *dataset.Table) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
