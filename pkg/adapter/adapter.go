// Package adapter defines the narrow read-only contract the gateway uses to
// talk to its storage engine.
//
// The gateway never writes: adapters connect in read-only mode where the
// engine supports it, and expose only Query plus the catalog metadata the
// validator and resolver need. Concrete implementations are in
// pkg/adapters/ subdirectories and self-register via init().
package adapter

import (
	"context"
	"database/sql"
)

// Config holds configuration for connecting to an engine.
type Config struct {
	Type   string // sqlite, duckdb, postgres
	Path   string // file path for file-based engines
	DSN    string // connection string for network engines
	Schema string // served schema namespace

	MaxOpenConns int
	MaxIdleConns int
}

// Adapter is the read-only engine contract.
type Adapter interface {
	// Connect establishes a connection using the provided config. The
	// connection is opened read-only where the engine supports it.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Ping verifies the engine is reachable.
	Ping(ctx context.Context) error

	// Query executes a read-only SQL statement with bound arguments.
	Query(ctx context.Context, sql string, args ...any) (*Rows, error)

	// Placeholder returns the bind-parameter placeholder for the n-th
	// argument (1-based), e.g. "?" or "$1".
	Placeholder(n int) string

	// SchemaTables lists the tables of the served schema with their
	// column metadata.
	SchemaTables(ctx context.Context, schema string) ([]Table, error)
}

// Column represents a column in an engine table.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
	Position   int
}

// Table holds metadata about one engine table.
type Table struct {
	Schema  string
	Name    string
	Columns []Column
}

// Rows wraps sql.Rows to keep database/sql out of the packages above the
// adapter boundary.
type Rows struct {
	*sql.Rows
}
