package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leapstack-labs/livegate/internal/cursor"
	"github.com/leapstack-labs/livegate/internal/paginate"
	"github.com/leapstack-labs/livegate/internal/session"
	"github.com/leapstack-labs/livegate/internal/subscribe"
	"github.com/leapstack-labs/livegate/internal/validate"
	"github.com/leapstack-labs/livegate/pkg/parser"
)

// validationError adapts a rejecting verdict into an error.
type validationError struct {
	verdict validate.Verdict
}

func (e *validationError) Error() string {
	if e.verdict.Node != "" {
		return e.verdict.Reason + ": " + e.verdict.Node
	}
	return e.verdict.Reason
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// statusFor maps gateway errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	var (
		parseErr    *parser.ParseError
		valErr      *validationError
		decodeErr   *cursor.DecodeError
		mismatchErr *cursor.MismatchError
		requestErr  *paginate.RequestError
		resourceErr *session.ResourceExceededError
		engineErr   *session.EngineUnavailableError
		channelErr  *subscribe.ChannelDisconnectedError
	)

	switch {
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity, "parse_error"
	case errors.As(err, &valErr):
		return http.StatusBadRequest, "validation_rejected"
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, "invalid_cursor"
	case errors.As(err, &requestErr):
		return http.StatusBadRequest, "bad_request"
	case errors.As(err, &mismatchErr):
		return http.StatusConflict, "cursor_mismatch"
	case errors.As(err, &channelErr):
		return http.StatusConflict, "channel_disconnected"
	case errors.As(err, &engineErr):
		return http.StatusServiceUnavailable, "engine_unavailable"
	case errors.As(err, &resourceErr):
		return http.StatusGatewayTimeout, "resource_exceeded"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Code: code, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
