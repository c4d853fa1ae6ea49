// Package io provides input/output utilities for pipeline artifacts.
package io

import "github.com/hed1ad/fraudguard/pkg/dataset"

// Reader is the interface for reading a complete table from a source.
type Reader interface {
	// Read returns the complete dataset.
	Read() (*dataset.Table, error)

	// Close releases resources.
	Close() error
}

// Writer is the interface for persisting a complete table.
type Writer interface {
	// Write outputs the whole table, replacing any previous content.
	Write(t *dataset.Table) error
}
