package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/livegate/internal/advance"
	"github.com/leapstack-labs/livegate/internal/catalog"
	"github.com/leapstack-labs/livegate/internal/config"
	"github.com/leapstack-labs/livegate/internal/paginate"
	"github.com/leapstack-labs/livegate/internal/server"
	"github.com/leapstack-labs/livegate/internal/session"
	"github.com/leapstack-labs/livegate/internal/subscribe"
	"github.com/leapstack-labs/livegate/internal/validate"
	"github.com/leapstack-labs/livegate/pkg/adapter"

	// Engine adapters register themselves on import.
	_ "github.com/leapstack-labs/livegate/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/livegate/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/livegate/pkg/adapters/sqlite"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the query gateway",
		Long: `Start the gateway: connect to the engine read-only, load the catalog,
and serve queries and live subscriptions over HTTP.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.Verbose)

	a, err := adapter.New(cfg.Engine.AdapterConfig(), logger)
	if err != nil {
		return err
	}
	if err := a.Connect(ctx, cfg.Engine.AdapterConfig()); err != nil {
		return fmt.Errorf("failed to connect to engine: %w", err)
	}
	defer func() { _ = a.Close() }()

	cat := catalog.New(cfg.Engine.Schema, logger)
	if err := cat.Load(ctx, a); err != nil {
		return err
	}

	bus := advance.NewBus()
	tracker := advance.NewTracker()
	sessions := session.NewManager(a, cfg.Limits.SessionLimits(), logger)
	resolver := paginate.NewResolver(sessions, cat, tracker.Seq, logger)
	validator := validate.New(cfg.Engine.Schema, cat.TableNames())

	subscriber, err := subscribe.NewManager(validator, resolver, bus, subscribe.Options{
		PoolSize:      cfg.Live.PoolSize,
		ChannelBuffer: cfg.Live.ChannelBuffer,
		SendTimeout:   cfg.Live.SendTimeout(),
	}, logger)
	if err != nil {
		return err
	}

	srv := server.NewServer(server.Config{
		Addr:          cfg.Listen.Addr(),
		SessionSecret: cfg.SessionSecret,
		RatePerSec:    cfg.Rate.PerSec,
		RateBurst:     cfg.Rate.Burst,
		Validator:     validator,
		Catalog:       cat,
		Resolver:      resolver,
		Subscriber:    subscriber,
		Bus:           bus,
		Tracker:       tracker,
		Logger:        logger,
	})

	eg, egctx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled && cfg.Engine.Path != "" {
		watcher := advance.NewWatcher(cfg.Engine.Path, cfg.Watch.Source, cfg.Watch.Debounce(), func(adv advance.Advance) {
			tracker.Record(adv)
			bus.Publish(adv)
		}, logger)
		eg.Go(func() error {
			if err := watcher.Run(egctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	}

	eg.Go(func() error {
		return srv.Serve(egctx)
	})

	if err := eg.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
