package config

// Default configuration values.
const (
	DefaultHost               = "127.0.0.1"
	DefaultPort               = 8844
	DefaultEngineType         = "sqlite"
	DefaultSchema             = "main"
	DefaultStatementTimeoutMS = 10_000
	DefaultMaxRows            = 10_000
	DefaultMaxResultBytes     = 8 << 20
	DefaultRetryAttempts      = 3
	DefaultRatePerSec         = 10.0
	DefaultRateBurst          = 20
	DefaultWatchDebounceMS    = 250
	DefaultPoolSize           = 16
	DefaultChannelBuffer      = 16
	DefaultSendTimeoutMS      = 5_000
)

// defaults is the lowest-precedence configuration layer.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"listen.host":                 DefaultHost,
		"listen.port":                 DefaultPort,
		"engine.type":                 DefaultEngineType,
		"engine.schema":               DefaultSchema,
		"limits.statement_timeout_ms": DefaultStatementTimeoutMS,
		"limits.max_rows":             DefaultMaxRows,
		"limits.max_result_bytes":     DefaultMaxResultBytes,
		"limits.retry_attempts":       DefaultRetryAttempts,
		"rate.per_sec":                DefaultRatePerSec,
		"rate.burst":                  DefaultRateBurst,
		"watch.enabled":               false,
		"watch.debounce_ms":           DefaultWatchDebounceMS,
		"live.pool_size":              DefaultPoolSize,
		"live.channel_buffer":         DefaultChannelBuffer,
		"live.send_timeout_ms":        DefaultSendTimeoutMS,
		"verbose":                     false,
	}
}
