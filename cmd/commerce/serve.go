package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/claim"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/dedup"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/events"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/handler"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/middleware"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/payment"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/policy"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/repository/bolt"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/repository/postgres"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/saga"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/scheduler"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/cache"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/config"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

// backend is the storage selected by STORAGE_DRIVER.
type backend struct {
	payments payment.Repository
	claims   claim.Repository
	cache    cache.Store
	counter  cache.Counter
	checks   []handler.DependencyCheck
	jobs     []*scheduler.Job
	close    func()
}

func openBackend(cfg *config.Config, policies policy.Set, log logger.Logger) (*backend, error) {
	if cfg.Storage.Driver == config.StorageDriverBolt {
		store, err := bolt.Open(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		log.Info("Bolt store opened", map[string]interface{}{"path": cfg.Storage.BoltPath})
		return &backend{
			payments: store.Payments(),
			claims:   store.Claims(policies.ActiveClaim.Key),
			cache:    store,
			counter:  store,
			checks:   []handler.DependencyCheck{{Name: "bolt", Ping: store.Ping}},
			jobs: []*scheduler.Job{{
				Name:     "purge-expired-cache",
				Interval: 10 * time.Minute,
				Run: func(ctx context.Context) error {
					n, err := store.PurgeExpired(ctx)
					if err == nil && n > 0 {
						log.Info("Purged expired cache entries", map[string]interface{}{"removed": n})
					}
					return err
				},
			}},
			close: func() { _ = store.Close() },
		}, nil
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("Database connected", nil)

	rc, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Redis connected", nil)

	return &backend{
		payments: postgres.NewPaymentRepository(db),
		claims:   postgres.NewClaimRepository(db, policies.ActiveClaim.Key),
		cache:    rc,
		counter:  rc,
		checks: []handler.DependencyCheck{
			{Name: "postgres", DegradedAfter: 200 * time.Millisecond, Ping: db.PingContext},
			{Name: "redis", DegradedAfter: 50 * time.Millisecond, Ping: rc.Ping},
		},
		close: func() {
			_ = rc.Close()
			_ = db.Close()
		},
	}, nil
}

func serve() error {
	cfg := config.Load()
	log := logger.New("commerce")

	if err := cfg.ValidateCore(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	shutdownTracing, err := tracing.Init(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	policies, err := policy.FromConfig(cfg.Claims)
	if err != nil {
		return err
	}

	be, err := openBackend(cfg, policies, log)
	if err != nil {
		return err
	}
	defer be.close()

	bus := events.NewDispatcher(log)
	var external []events.Publisher
	if cfg.Kafka.Enabled {
		producer, err := events.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("failed to connect to kafka: %w", err)
		}
		kafka := events.NewKafkaPublisher(producer, cfg.Kafka, log)
		defer kafka.Close()
		external = append(external, kafka)
		log.Info("Kafka publisher enabled", map[string]interface{}{"brokers": cfg.Kafka.Brokers})
	}
	publisher := events.Instrumented{Next: events.Chain(bus, external...)}

	tracker := dedup.NewTracker(be.cache, cfg.Redis.DedupTTL)
	payments := payment.NewService(be.payments, publisher, tracker, log)
	claims := claim.NewService(be.claims, publisher, tracker, policies, log)
	saga.NewRefundSaga(payments, claims, log).Register(bus)

	router := handler.NewRouter(handler.RouterDeps{
		Payments:    handler.NewPaymentHandler(payments, log),
		Claims:      handler.NewClaimHandler(claims, log),
		Webhooks:    handler.NewWebhookHandler(payments, claims, cfg.Server.WebhookSecret, log),
		System:      handler.NewSystemHandler(be.checks, log),
		Auth:        middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer),
		Idempotency: middleware.NewIdempotencyMiddleware(be.cache, cfg.Server.IdempotencyTTL, log),
		RateLimit:   middleware.NewRateLimiter(be.counter, cfg.Server.RateLimit, cfg.Server.RateWindow, log),
		Logger:      log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      middleware.CORS(cfg.Server.CORSAllowedOrigins)(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(be.jobs) > 0 {
		sched := scheduler.NewScheduler(log)
		for _, job := range be.jobs {
			sched.Schedule(job)
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Commerce service started", map[string]interface{}{
			"address": srv.Addr,
			"storage": cfg.Storage.Driver,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down commerce service...", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("Commerce service stopped gracefully", nil)
	return nil
}
