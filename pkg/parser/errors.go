package parser

import (
	"fmt"

	"github.com/leapstack-labs/livegate/pkg/token"
)

// ParseError represents a parsing error with position information.
type ParseError struct {
	Pos     token.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Common error messages.
const (
	ErrUnexpectedToken = "unexpected token %s, expected %s"
	ErrNotReadOnly     = "statement must begin with SELECT or WITH, got %q"
	ErrMultiStatement  = "multiple statements are not allowed"
)
