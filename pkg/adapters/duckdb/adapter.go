// Package duckdb provides a read-only DuckDB adapter for the gateway.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/livegate/pkg/adapter"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Connect opens the DuckDB database with access_mode=read_only.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("duckdb engine requires a database path")
	}

	dsn := cfg.Path + "?access_mode=read_only"

	a.Logger.Debug("connecting to duckdb", "path", cfg.Path)

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	a.ApplyPool(cfg)
	return nil
}

// Placeholder returns the bind-parameter placeholder for the n-th argument.
func (a *Adapter) Placeholder(_ int) string {
	return "?"
}

// SchemaTables lists the tables of the served schema using DuckDB's
// information_schema.
func (a *Adapter) SchemaTables(ctx context.Context, schema string) ([]adapter.Table, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("engine connection not established")
	}
	if schema == "" {
		schema = "main"
	}

	rows, err := a.DB.QueryContext(ctx, `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable, c.ordinal_position
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = ? AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byTable := map[string]*adapter.Table{}
	var order []string
	for rows.Next() {
		var (
			table    string
			col      adapter.Column
			nullable string
		)
		if err := rows.Scan(&table, &col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"

		t, ok := byTable[table]
		if !ok {
			t = &adapter.Table{Schema: schema, Name: table}
			byTable[table] = t
			order = append(order, table)
		}
		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schema metadata: %w", err)
	}

	tables := make([]adapter.Table, 0, len(order))
	for _, name := range order {
		tables = append(tables, *byTable[name])
	}
	return tables, nil
}
