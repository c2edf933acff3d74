package server

import (
	"encoding/json"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/livegate/internal/advance"
	"github.com/leapstack-labs/livegate/internal/paginate"
	"github.com/leapstack-labs/livegate/pkg/parser"
)

type queryRequest struct {
	SQL            string `json:"sql"`
	Limit          *int   `json:"limit"`
	After          string `json:"after"`
	Before         string `json:"before"`
	WithTotalCount bool   `json:"withTotalCount"`
}

func (q queryRequest) limit() int {
	if q.Limit == nil {
		return -1
	}
	return *q.Limit
}

// parseAndValidate turns raw SQL into a validated statement.
func (s *Server) parseAndValidate(sql string) (*parser.SelectStmt, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	if verdict := s.validator.Validate(stmt); !verdict.OK {
		return nil, &validationError{verdict: verdict}
	}
	return stmt, nil
}

// handleQuery validates and resolves one page of a query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	clientID := s.clientID(w, r)
	if !s.limiter.allow(clientID) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Code: "rate_limited", Error: "too many requests",
		})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &paginate.RequestError{Message: "invalid request body"})
		return
	}
	if req.SQL == "" {
		s.writeError(w, &paginate.RequestError{Message: "sql is required"})
		return
	}

	stmt, err := s.parseAndValidate(req.SQL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	page, err := s.resolver.Resolve(r.Context(), paginate.Request{
		SQL:            req.SQL,
		Query:          stmt,
		Limit:          req.limit(),
		After:          req.After,
		Before:         req.Before,
		WithTotalCount: req.WithTotalCount,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleLive opens the client's live channel and streams result pushes
// over SSE until the client goes away.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	clientID := s.clientID(w, r)

	ch := s.subscriber.AttachChannel(clientID)
	defer s.subscriber.DetachChannel(ch)

	sse := datastar.NewSSE(w, r)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch.Done():
			return
		case push := <-ch.C():
			if err := sse.MarshalAndPatchSignals(push); err != nil {
				return
			}
		}
	}
}

type subscribeRequest struct {
	SQL            string `json:"sql"`
	Limit          *int   `json:"limit"`
	WithTotalCount bool   `json:"withTotalCount"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	clientID := s.clientID(w, r)

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &paginate.RequestError{Message: "invalid request body"})
		return
	}
	if req.SQL == "" {
		s.writeError(w, &paginate.RequestError{Message: "sql is required"})
		return
	}

	stmt, err := s.parseAndValidate(req.SQL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	limit := -1
	if req.Limit != nil {
		limit = *req.Limit
	}
	sub, err := s.subscriber.Subscribe(r.Context(), clientID, paginate.Request{
		SQL:            req.SQL,
		Query:          stmt,
		Limit:          limit,
		WithTotalCount: req.WithTotalCount,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"subscriptionId": sub.ID()})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	clientID := s.clientID(w, r)

	var req struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubscriptionID == "" {
		s.writeError(w, &paginate.RequestError{Message: "subscriptionId is required"})
		return
	}

	if err := s.subscriber.Unsubscribe(clientID, req.SubscriptionID); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Code: "unknown_subscription", Error: err.Error(),
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAdvance is the ingestion hook: a source reports that the
// dataset has progressed.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var adv advance.Advance
	if err := json.NewDecoder(r.Body).Decode(&adv); err != nil || adv.Source == "" {
		s.writeError(w, &paginate.RequestError{Message: "source and seq are required"})
		return
	}

	s.tracker.Record(adv)
	s.bus.Publish(adv)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"schema":        s.catalog.Schema(),
		"tables":        s.catalog.TableNames(),
		"sources":       s.tracker.Snapshot(),
		"subscriptions": s.subscriber.Subscriptions(),
	})
}
