// Package server exposes the query gateway over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/livegate/internal/advance"
	"github.com/leapstack-labs/livegate/internal/catalog"
	"github.com/leapstack-labs/livegate/internal/paginate"
	"github.com/leapstack-labs/livegate/internal/subscribe"
	"github.com/leapstack-labs/livegate/internal/validate"
)

// Config holds the server's collaborators and settings.
type Config struct {
	Addr          string
	SessionSecret string
	RatePerSec    float64
	RateBurst     int

	Validator  *validate.Validator
	Catalog    *catalog.Catalog
	Resolver   *paginate.Resolver
	Subscriber *subscribe.Manager
	Bus        *advance.Bus
	Tracker    *advance.Tracker
	Logger     *slog.Logger
}

// Server is the gateway HTTP server.
type Server struct {
	addr         string
	sessionStore *sessions.CookieStore
	limiter      *clientLimiter

	validator  *validate.Validator
	catalog    *catalog.Catalog
	resolver   *paginate.Resolver
	subscriber *subscribe.Manager
	bus        *advance.Bus
	tracker    *advance.Tracker
	logger     *slog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg Config) *Server {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		addr:         cfg.Addr,
		sessionStore: sessionStore,
		limiter:      newClientLimiter(cfg.RatePerSec, cfg.RateBurst),
		validator:    cfg.Validator,
		catalog:      cfg.Catalog,
		resolver:     cfg.Resolver,
		subscriber:   cfg.Subscriber,
		bus:          cfg.Bus,
		tracker:      cfg.Tracker,
		logger:       logger,
	}
}

// Routes builds the gateway's router.
func (s *Server) Routes() chi.Router {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Post("/query", s.handleQuery)
	r.Get("/live", s.handleLive)
	r.Post("/live/subscribe", s.handleSubscribe)
	r.Post("/live/unsubscribe", s.handleUnsubscribe)
	r.Post("/internal/advance", s.handleAdvance)
	r.Get("/status", s.handleStatus)
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting gateway server", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		return s.subscriber.Run(egctx)
	})

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down gateway server...")
		return srv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
