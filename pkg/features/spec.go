// Package features derives per-user as-of aggregates from transaction
// tables.
package features

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/fraudguard/pkg/dataset"
)

// Op is an aggregate operation over a user's prior transactions.
type Op string

const (
	OpCount Op = "count"
	OpSum   Op = "sum"
	OpMean  Op = "mean"
	OpMin   Op = "min"
	OpMax   Op = "max"
	OpStd   Op = "std"   // sample standard deviation
	OpDelta Op = "delta" // current value minus the previous transaction's value
)

// Aggregate defines one derived column.
type Aggregate struct {
	Name   string `yaml:"name"`
	Op     Op     `yaml:"op"`
	Column string `yaml:"column,omitempty"`
	// Window limits the aggregate to the N most recent prior transactions.
	// 0 means every prior transaction.
	Window int `yaml:"window,omitempty"`
}

// Spec is a declarative set of per-user aggregates.
type Spec struct {
	// UserColumn groups transactions.
	UserColumn string `yaml:"user_column"`
	// TimeColumn orders a user's transactions. Ties are broken by
	// OrderColumn.
	TimeColumn  string      `yaml:"time_column"`
	OrderColumn string      `yaml:"order_column"`
	Aggregates  []Aggregate `yaml:"aggregates"`
}

// Engine evaluates a Spec over a table.
//
// The result holds every input column in input order followed by one column
// per aggregate, with rows in input order. Aggregates that are undefined
// for a transaction (no prior transaction, std of fewer than two) are zero.
type Engine interface {
	Aggregate(ctx context.Context, t *dataset.Table, spec Spec) (*dataset.Table, error)
}

// LoadSpec reads a Spec from a YAML file.
func LoadSpec(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return Spec{}, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates a YAML Spec. Unset column names default to
// user_id, Time and index.
func ParseSpec(data []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, err
	}

	if spec.UserColumn == "" {
		spec.UserColumn = UserIDColumn
	}
	if spec.TimeColumn == "" {
		spec.TimeColumn = "Time"
	}
	if spec.OrderColumn == "" {
		spec.OrderColumn = IndexColumn
	}

	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Validate checks aggregate names, operations and windows.
func (s Spec) Validate() error {
	if len(s.Aggregates) == 0 {
		return errors.New("no aggregates defined")
	}

	seen := make(map[string]bool, len(s.Aggregates))
	for i, a := range s.Aggregates {
		if a.Name == "" {
			return fmt.Errorf("aggregate %d: missing name", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("aggregate %q defined twice", a.Name)
		}
		seen[a.Name] = true

		switch a.Op {
		case OpCount:
		case OpSum, OpMean, OpMin, OpMax, OpStd, OpDelta:
			if a.Column == "" {
				return fmt.Errorf("aggregate %q: op %s needs a column", a.Name, a.Op)
			}
		default:
			return fmt.Errorf("aggregate %q: unknown op %q", a.Name, a.Op)
		}

		if a.Window < 0 {
			return fmt.Errorf("aggregate %q: negative window", a.Name)
		}
	}
	return nil
}

// Names returns the aggregate column names in definition order.
func (s Spec) Names() []string {
	names := make([]string, len(s.Aggregates))
	for i, a := range s.Aggregates {
		names[i] = a.Name
	}
	return names
}

// requiredColumns lists every input column the spec reads.
func (s Spec) requiredColumns() []string {
	cols := []string{s.UserColumn, s.TimeColumn, s.OrderColumn}
	for _, a := range s.Aggregates {
		if a.Column != "" {
			cols = append(cols, a.Column)
		}
	}
	return cols
}
