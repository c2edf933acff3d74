// Package sqlite provides a read-only SQLite adapter for the gateway.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/livegate/pkg/adapter"

	_ "modernc.org/sqlite" // sqlite driver
)

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Connect opens the SQLite database read-only. query_only is set as a
// second line of defense on top of mode=ro.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("sqlite engine requires a database path")
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=query_only(1)&_pragma=busy_timeout(5000)", cfg.Path)

	a.Logger.Debug("connecting to sqlite", "path", cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
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

// SchemaTables lists the tables of the served schema. SQLite has a single
// schema ("main"); the schema argument is only used to label the result.
func (a *Adapter) SchemaTables(ctx context.Context, schema string) ([]adapter.Table, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("engine connection not established")
	}

	rows, err := a.DB.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	tables := make([]adapter.Table, 0, len(names))
	for _, name := range names {
		cols, err := a.tableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, adapter.Table{Schema: schema, Name: name, Columns: cols})
	}
	return tables, nil
}

// tableColumns reads column metadata via PRAGMA table_info.
// PRAGMA does not support bound parameters; the table name comes from
// sqlite_master above, never from a caller.
func (a *Adapter) tableColumns(ctx context.Context, table string) ([]adapter.Column, error) {
	rows, err := a.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []adapter.Column
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		columns = append(columns, adapter.Column{
			Name:       name,
			Type:       colType,
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
			Position:   cid + 1,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of %s: %w", table, err)
	}
	return columns, nil
}
