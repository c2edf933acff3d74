// Package catalog holds the table metadata of the served schema.
//
// The catalog is loaded once from the engine at startup and refreshed on
// demand. Validation and pagination consult it for table existence,
// column metadata, and the identity column used as a default sort
// tie-break.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/livegate/pkg/adapter"
)

// Catalog is the queryable snapshot of the served schema.
type Catalog struct {
	mu     sync.RWMutex
	schema string
	tables map[string]adapter.Table
	logger *slog.Logger
}

// New creates an empty catalog for the given schema.
func New(schema string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		schema: schema,
		tables: map[string]adapter.Table{},
		logger: logger,
	}
}

// Load replaces the catalog contents with the engine's current metadata.
func (c *Catalog) Load(ctx context.Context, a adapter.Adapter) error {
	tables, err := a.SchemaTables(ctx, c.schema)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	next := make(map[string]adapter.Table, len(tables))
	for _, t := range tables {
		next[strings.ToLower(t.Name)] = t
	}

	c.mu.Lock()
	c.tables = next
	c.mu.Unlock()

	c.logger.Info("catalog loaded", "schema", c.schema, "tables", len(next))
	return nil
}

// Schema returns the name of the served schema.
func (c *Catalog) Schema() string {
	return c.schema
}

// TableNames returns the sorted names of all known tables.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table looks up a table by name, case-insensitively.
func (c *Catalog) Table(name string) (adapter.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[strings.ToLower(name)]
	return t, ok
}

// Identity returns the name of the table's identity column, used as the
// stable tie-break for keyset pagination. It prefers a single-column
// primary key, then a column literally named "id", then the first
// column in declaration order.
func (c *Catalog) Identity(name string) (string, bool) {
	t, ok := c.Table(name)
	if !ok || len(t.Columns) == 0 {
		return "", false
	}

	var pk []string
	for _, col := range t.Columns {
		if col.PrimaryKey {
			pk = append(pk, col.Name)
		}
	}
	if len(pk) == 1 {
		return pk[0], true
	}

	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, "id") {
			return col.Name, true
		}
	}
	return t.Columns[0].Name, true
}

// Put inserts or replaces a single table entry. Intended for tests and
// file-backed datasets discovered after startup.
func (c *Catalog) Put(t adapter.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[strings.ToLower(t.Name)] = t
}
