package server

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	sessionName    = "livegate"
	sessionKeyID   = "cid"
	clientIDHeader = "X-Livegate-Client"
)

// clientID identifies the caller. An explicit header wins; otherwise
// the id is read from the cookie session, minting one on first contact.
func (s *Server) clientID(w http.ResponseWriter, r *http.Request) string {
	if id := r.Header.Get(clientIDHeader); id != "" {
		return id
	}

	sess, _ := s.sessionStore.Get(r, sessionName)
	if id, ok := sess.Values[sessionKeyID].(string); ok && id != "" {
		return id
	}

	id := uuid.NewString()
	sess.Values[sessionKeyID] = id
	if err := sess.Save(r, w); err != nil {
		s.logger.Debug("failed to save client session", "error", err)
	}
	return id
}
