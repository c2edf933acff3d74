package session

import "fmt"

// Limit kinds reported by ResourceExceededError.
const (
	LimitRows    = "rows"
	LimitBytes   = "bytes"
	LimitTimeout = "timeout"
)

// ResourceExceededError is returned when a query breaches one of the
// session's resource limits. The partial result is discarded.
type ResourceExceededError struct {
	Kind  string
	Limit int64
}

func (e *ResourceExceededError) Error() string {
	switch e.Kind {
	case LimitTimeout:
		return fmt.Sprintf("query exceeded the statement timeout of %dms", e.Limit)
	case LimitBytes:
		return fmt.Sprintf("query result exceeded the size limit of %d bytes", e.Limit)
	default:
		return fmt.Sprintf("query result exceeded the limit of %d rows", e.Limit)
	}
}

// EngineUnavailableError is returned when the engine cannot be reached
// after the configured retries.
type EngineUnavailableError struct {
	Attempts int
	Err      error
}

func (e *EngineUnavailableError) Error() string {
	return fmt.Sprintf("engine unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EngineUnavailableError) Unwrap() error {
	return e.Err
}
