package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/quantpulse/marketd/internal/blob/s3"
	"github.com/quantpulse/marketd/internal/cache/redis"
	"github.com/quantpulse/marketd/internal/config"
	"github.com/quantpulse/marketd/internal/domain"
	"github.com/quantpulse/marketd/internal/metrics"
	"github.com/quantpulse/marketd/internal/notify"
	"github.com/quantpulse/marketd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application needs
// to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	TickStore           domain.TickStore
	CandleStore         domain.CandleStore
	InstrumentStore     domain.InstrumentStore
	AlertRuleStore      domain.AlertRuleStore
	AlertHistoryStore   domain.AlertHistoryStore
	ExchangeStatusStore domain.ExchangeStatusStore

	// Dedup backend
	Dedup domain.Deduplicator

	// Cold storage (nil when no bucket is configured)
	TickArchiver *s3blob.TickArchiver

	// Notifications
	Notifier *notify.Notifier

	// Metrics
	Metrics *metrics.Registry
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.NewRegistry(),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.Connect(ctx, postgres.Config{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.Migrate(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.TickStore = postgres.NewTickStore(pool)
	deps.CandleStore = postgres.NewCandleStore(pool)
	deps.InstrumentStore = postgres.NewInstrumentStore(pool)
	deps.AlertRuleStore = postgres.NewAlertRuleStore(pool)
	deps.AlertHistoryStore = postgres.NewAlertHistoryStore(pool)
	deps.ExchangeStatusStore = postgres.NewExchangeStatusStore(pool)

	// --- Redis deduplicator ---
	dedup, err := redis.NewDeduplicator(ctx, redis.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = dedup.Close() })

	deps.Dedup = dedup

	// --- S3 cold storage (optional) ---
	if cfg.S3.Bucket != "" {
		bucket, err := s3blob.Open(ctx, s3blob.Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.TickArchiver = s3blob.NewTickArchiver(bucket, deps.TickStore)
	}

	// --- Notifications ---
	channels, err := notify.BuildChannels(cfg.Channels, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: channels: %w", err)
	}
	deps.Notifier = notify.NewNotifier(channels, cfg.Alerts.MaxConcurrentNotifications, logger)

	return deps, cleanup, nil
}
