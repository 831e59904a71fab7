// Package storage persists join operand tables.
package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

// ErrTableNotFound is returned when a named table does not exist.
var ErrTableNotFound = errors.New("table not found")

// Store is the interface for table storage
type Store interface {
	// Write operations
	PutTable(name string, t *table.Table) error
	DeleteTable(name string) error

	// Read operations
	GetTable(name string) (*table.Table, error)
	GetTables(ctx context.Context, names ...string) ([]*table.Table, error)
	ListTables() ([]string, error)

	// Lifecycle
	Close() error
}
