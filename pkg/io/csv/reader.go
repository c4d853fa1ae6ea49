// Package csv provides CSV file reading and writing for tabular data.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hed1ad/fraudguard/pkg/dataset"
	pkgio "github.com/hed1ad/fraudguard/pkg/io"
)

var _ pkgio.Reader = (*Reader)(nil)

// Reader reads numeric tables from CSV files.
type Reader struct {
	file      *os.File
	reader    *csv.Reader
	hasHeader bool
	headers   []string
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// NewReader creates a new CSV reader. A missing file is reported with an
// error satisfying errors.Is(err, fs.ErrNotExist).
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:      file,
		reader:    csv.NewReader(file),
		hasHeader: true,
	}
	r.reader.ReuseRecord = true

	for _, opt := range opts {
		opt(r)
	}

	// Read header if present
	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			file.Close()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%s: empty file", filename)
			}
			return nil, err
		}
		r.headers = make([]string, len(headers))
		for i, h := range headers {
			r.headers[i] = strings.TrimSpace(h)
		}
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns the whole file as a table. A malformed value fails the read
// with its line and column.
func (r *Reader) Read() (*dataset.Table, error) {
	var rows [][]float64

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if r.headers == nil {
			r.headers = make([]string, len(record))
			for i := range record {
				r.headers[i] = fmt.Sprintf("col_%d", i)
			}
		}

		row, err := parseRow(record)
		if err != nil {
			line, _ := r.reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}

	if rows == nil {
		rows = [][]float64{}
	}
	return dataset.New(r.headers, rows)
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// ReadFile opens, reads and closes a headed CSV file.
func ReadFile(filename string) (*dataset.Table, error) {
	r, err := NewReader(filename)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.Read()
}

// parseRow converts string slice to float slice.
func parseRow(record []string) ([]float64, error) {
	if len(record) == 0 {
		return nil, errors.New("empty row")
	}

	row := make([]float64, len(record))
	for i, val := range record {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		row[i] = f
	}
	return row, nil
}
