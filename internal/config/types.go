// Package config provides the gateway's configuration types and loader.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/livegate/internal/session"
	"github.com/leapstack-labs/livegate/pkg/adapter"
)

// Config holds all gateway configuration.
type Config struct {
	Listen        ListenConfig `koanf:"listen"`
	Engine        EngineConfig `koanf:"engine"`
	Limits        LimitsConfig `koanf:"limits"`
	Rate          RateConfig   `koanf:"rate"`
	Watch         WatchConfig  `koanf:"watch"`
	Live          LiveConfig   `koanf:"live"`
	SessionSecret string       `koanf:"session_secret"`
	Verbose       bool         `koanf:"verbose"`
}

// ListenConfig holds the HTTP listener settings.
type ListenConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Addr returns the listen address in host:port form.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// EngineConfig holds the target engine settings.
type EngineConfig struct {
	Type string `koanf:"type"` // sqlite, duckdb, postgres

	// File-based engines (sqlite, duckdb)
	Path string `koanf:"path"`

	// Network engines
	DSN string `koanf:"dsn"`

	Schema       string `koanf:"schema"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
}

// Validate checks the engine configuration against the adapter
// registry.
func (e EngineConfig) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("engine type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(e.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      e.Type,
			Available: adapter.List(),
		}
	}
	return nil
}

// AdapterConfig converts the engine settings into an adapter config.
func (e EngineConfig) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:         strings.ToLower(e.Type),
		Path:         e.Path,
		DSN:          e.DSN,
		Schema:       e.Schema,
		MaxOpenConns: e.MaxOpenConns,
		MaxIdleConns: e.MaxIdleConns,
	}
}

// LimitsConfig bounds query execution.
type LimitsConfig struct {
	StatementTimeoutMS int   `koanf:"statement_timeout_ms"`
	MaxRows            int64 `koanf:"max_rows"`
	MaxResultBytes     int64 `koanf:"max_result_bytes"`
	RetryAttempts      int   `koanf:"retry_attempts"`
}

// SessionLimits converts the limit settings into session limits.
func (l LimitsConfig) SessionLimits() session.Limits {
	limits := session.Limits{
		MaxRows:        l.MaxRows,
		MaxResultBytes: l.MaxResultBytes,
	}
	if l.StatementTimeoutMS > 0 {
		limits.StatementTimeout = time.Duration(l.StatementTimeoutMS) * time.Millisecond
	}
	if l.RetryAttempts > 0 {
		limits.RetryAttempts = uint64(l.RetryAttempts)
	}
	return limits
}

// RateConfig holds the per-client rate limit.
type RateConfig struct {
	PerSec float64 `koanf:"per_sec"`
	Burst  int     `koanf:"burst"`
}

// WatchConfig controls the dataset file watcher.
type WatchConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Source     string `koanf:"source"`
	DebounceMS int    `koanf:"debounce_ms"`
}

// Debounce returns the watch debounce as a duration.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// LiveConfig tunes subscriptions and the live channel.
type LiveConfig struct {
	PoolSize      int `koanf:"pool_size"`
	ChannelBuffer int `koanf:"channel_buffer"`
	SendTimeoutMS int `koanf:"send_timeout_ms"`
}

// SendTimeout returns the channel send timeout as a duration.
func (l LiveConfig) SendTimeout() time.Duration {
	return time.Duration(l.SendTimeoutMS) * time.Millisecond
}
