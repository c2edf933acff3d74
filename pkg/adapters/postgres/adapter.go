// Package postgres provides a read-only PostgreSQL adapter for the gateway.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/livegate/pkg/adapter"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Connect establishes a connection to PostgreSQL with
// default_transaction_read_only forced on for every session.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.DSN == "" {
		return fmt.Errorf("postgres engine requires a DSN")
	}

	dsn := withReadOnlyOption(cfg.DSN)

	a.Logger.Debug("connecting to postgres")

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	a.ApplyPool(cfg)
	return nil
}

// withReadOnlyOption appends default_transaction_read_only=on to the DSN,
// handling both URL and key=value connection string formats.
func withReadOnlyOption(dsn string) string {
	const option = "default_transaction_read_only%3Don"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "options=-c%20" + option
	}
	return dsn + " options='-c default_transaction_read_only=on'"
}

// Placeholder returns the bind-parameter placeholder for the n-th argument.
func (a *Adapter) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// SchemaTables lists the tables of the served schema with primary key
// detection via pg_index.
func (a *Adapter) SchemaTables(ctx context.Context, schema string) ([]adapter.Table, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("engine connection not established")
	}
	if schema == "" {
		schema = "public"
	}

	rows, err := a.DB.QueryContext(ctx, `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.ordinal_position,
			EXISTS (
				SELECT 1
				FROM pg_index i
				JOIN pg_attribute att ON att.attrelid = i.indrelid AND att.attnum = ANY(i.indkey)
				WHERE i.indrelid = format('%I.%I', c.table_schema, c.table_name)::regclass
				  AND i.indisprimary
				  AND att.attname = c.column_name
			) AS is_pk
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
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
		if err := rows.Scan(&table, &col.Name, &col.Type, &nullable, &col.Position, &col.PrimaryKey); err != nil {
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
