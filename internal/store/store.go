// Package store defines the contract the index expects from a sorted,
// column-family key-value store: table administration, single-row reads and
// writes, non-atomic batch writes, atomic counter increments and
// family-scoped scans. Backends live in the sub-packages.
package store

import (
	"bytes"
	"context"
	"sort"
)

// Cell is one (family, qualifier) -> value entry of a row.
type Cell struct {
	Family    string
	Qualifier []byte
	Value     []byte
}

// Put writes a set of cells into one row.
type Put struct {
	Row   []byte
	Cells []Cell
}

// NewPut returns a Put holding a single cell.
func NewPut(row []byte, family string, qualifier, value []byte) Put {
	return Put{Row: row, Cells: []Cell{{Family: family, Qualifier: qualifier, Value: value}}}
}

// Admin manages table lifecycle.
type Admin interface {
	CreateTable(ctx context.Context, name string, families []string) error
	DropTable(ctx context.Context, name string) error
	TableExists(ctx context.Context, name string) (bool, error)
}

// Store is a backend: table administration plus handle creation.
type Store interface {
	Admin
	OpenTable(ctx context.Context, name string) (Table, error)
	Close() error
}

// Table is a handle onto one table. Handles are cheap to hold and are
// returned to a Pool after use; a closed handle fails every call with
// ErrClosed.
type Table interface {
	Name() string

	// GetCell reads one cell; a missing cell reports ErrNotFound.
	GetCell(ctx context.Context, row []byte, family string, qualifier []byte) ([]byte, error)

	// GetFamily reads every cell of one family in one row, ordered by
	// qualifier bytes. A missing row yields an empty slice.
	GetFamily(ctx context.Context, row []byte, family string) ([]Cell, error)

	Put(ctx context.Context, p Put) error

	// BatchPut applies puts in one round trip where the backend allows. It is
	// not atomic: a failure may leave any subset of the puts applied.
	BatchPut(ctx context.Context, puts []Put) error

	// Increment atomically adds delta to a counter cell and returns the new
	// value. Concurrent increments are linearizable.
	Increment(ctx context.Context, row []byte, family string, qualifier []byte, delta int64) (int64, error)

	// SetCounter overwrites a counter cell.
	SetCounter(ctx context.Context, row []byte, family string, qualifier []byte, value int64) error

	// Counter reads a counter cell; a missing counter reports ErrNotFound.
	Counter(ctx context.Context, row []byte, family string, qualifier []byte) (int64, error)

	// Scan visits, in row order, every row starting with prefix that has at
	// least one cell in family. Only that family's cells are passed to fn.
	Scan(ctx context.Context, family string, prefix []byte, fn func(row []byte, cells []Cell) error) error

	Close() error
}

// SortCells orders cells by qualifier bytes, the native order of the
// backing stores.
func SortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		return bytes.Compare(cells[i].Qualifier, cells[j].Qualifier) < 0
	})
}
