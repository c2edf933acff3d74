package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"database/sql"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Ping, and Query implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing engine connection", "type", b.Cfg.Type)
		}
		return b.DB.Close()
	}
	return nil
}

// Ping verifies the engine is reachable.
func (b *BaseSQLAdapter) Ping(ctx context.Context) error {
	if b.DB == nil {
		return fmt.Errorf("engine connection not established")
	}
	return b.DB.PingContext(ctx)
}

// Query executes a read-only SQL statement with bound arguments.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string, args ...any) (*Rows, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("engine connection not established")
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := b.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &Rows{Rows: rows}, nil
}

// ApplyPool applies connection pool sizing from the config. Concrete
// adapters call this after opening their *sql.DB.
func (b *BaseSQLAdapter) ApplyPool(cfg Config) {
	if cfg.MaxOpenConns > 0 {
		b.DB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		b.DB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
}
