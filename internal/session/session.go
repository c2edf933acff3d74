// Package session executes validated queries against the engine under
// strict resource limits.
//
// Every execution runs with a statement timeout, a row cap, and a
// result size cap. Breaching any of them aborts the query and discards
// the partial result. Transient engine failures are retried with a
// bounded fibonacci backoff before surfacing as unavailable.
package session

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/leapstack-labs/livegate/pkg/adapter"
)

// Limits bound a single query execution.
type Limits struct {
	MaxRows          int64
	MaxResultBytes   int64
	StatementTimeout time.Duration
	RetryAttempts    uint64
	RetryBase        time.Duration
}

// DefaultLimits are applied when a limit is left unset.
var DefaultLimits = Limits{
	MaxRows:          10_000,
	MaxResultBytes:   8 << 20,
	StatementTimeout: 10 * time.Second,
	RetryAttempts:    3,
	RetryBase:        100 * time.Millisecond,
}

// RowSet is a fully materialized query result.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// Manager executes queries through an engine adapter.
type Manager struct {
	adapter adapter.Adapter
	limits  Limits
	logger  *slog.Logger
}

// NewManager creates a session manager. Zero-valued limits fall back to
// DefaultLimits.
func NewManager(a adapter.Adapter, limits Limits, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if limits.MaxRows <= 0 {
		limits.MaxRows = DefaultLimits.MaxRows
	}
	if limits.MaxResultBytes <= 0 {
		limits.MaxResultBytes = DefaultLimits.MaxResultBytes
	}
	if limits.StatementTimeout <= 0 {
		limits.StatementTimeout = DefaultLimits.StatementTimeout
	}
	if limits.RetryAttempts == 0 {
		limits.RetryAttempts = DefaultLimits.RetryAttempts
	}
	if limits.RetryBase <= 0 {
		limits.RetryBase = DefaultLimits.RetryBase
	}
	return &Manager{adapter: a, limits: limits, logger: logger}
}

// Limits returns the manager's effective limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// Placeholder returns the engine's bind placeholder for the n-th
// argument.
func (m *Manager) Placeholder(n int) string {
	return m.adapter.Placeholder(n)
}

// Execute runs the query and materializes the result under the
// manager's limits.
func (m *Manager) Execute(ctx context.Context, query string, args ...any) (*RowSet, error) {
	ctx, cancel := context.WithTimeout(ctx, m.limits.StatementTimeout)
	defer cancel()

	start := time.Now()

	var result *RowSet
	backoff := retry.WithMaxRetries(m.limits.RetryAttempts, retry.NewFibonacci(m.limits.RetryBase))
	attempts := 0

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		rs, err := m.runOnce(ctx, query, args...)
		if err != nil {
			if transient(err) && ctx.Err() == nil {
				return retry.RetryableError(err)
			}
			return err
		}
		result = rs
		return nil
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ResourceExceededError{
				Kind:  LimitTimeout,
				Limit: m.limits.StatementTimeout.Milliseconds(),
			}
		}
		var ree *ResourceExceededError
		if errors.As(err, &ree) {
			return nil, ree
		}
		if transient(err) {
			return nil, &EngineUnavailableError{Attempts: attempts, Err: err}
		}
		return nil, fmt.Errorf("query failed: %w", err)
	}

	m.logger.Debug("query executed",
		"rows", len(result.Rows),
		"duration", time.Since(start),
		"attempts", attempts,
	)
	return result, nil
}

// transient reports whether an engine error is connection-class and
// worth retrying. Deterministic statement errors are not: they would
// fail identically on every attempt.
func transient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func (m *Manager) runOnce(ctx context.Context, query string, args ...any) (*RowSet, error) {
	rows, err := m.adapter.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &RowSet{Columns: cols}
	var bytes int64

	for rows.Next() {
		if int64(len(result.Rows)) >= m.limits.MaxRows {
			return nil, &ResourceExceededError{Kind: LimitRows, Limit: m.limits.MaxRows}
		}

		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
			bytes += valueSize(values[i])
		}
		if bytes > m.limits.MaxResultBytes {
			return nil, &ResourceExceededError{Kind: LimitBytes, Limit: m.limits.MaxResultBytes}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result: %w", err)
	}
	return result, nil
}

// valueSize approximates the in-memory size of a scanned value for the
// result byte cap. Counts payload bytes, not interface overhead.
func valueSize(v any) int64 {
	switch val := v.(type) {
	case nil:
		return 1
	case string:
		return int64(len(val))
	case []byte:
		return int64(len(val))
	case bool:
		return 1
	case time.Time:
		return 24
	default:
		return 8
	}
}
