package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Marcusng88/FraudGuard/internal/config"
	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/internal/infrastructure/httpapi"
	"github.com/Marcusng88/FraudGuard/internal/infrastructure/messaging"
	"github.com/Marcusng88/FraudGuard/internal/infrastructure/providers"
	"github.com/Marcusng88/FraudGuard/internal/infrastructure/repository"
	"github.com/Marcusng88/FraudGuard/internal/infrastructure/similarity"
	"github.com/Marcusng88/FraudGuard/internal/service"
	"github.com/Marcusng88/FraudGuard/migrations"
	sharedmessaging "github.com/Marcusng88/FraudGuard/shared/messaging"
	"github.com/Marcusng88/FraudGuard/shared/metrics"
	"github.com/Marcusng88/FraudGuard/shared/migration"
	"github.com/Marcusng88/FraudGuard/shared/monitoring"
	"github.com/Marcusng88/FraudGuard/shared/postgres"
	"github.com/Marcusng88/FraudGuard/shared/redis"
	"github.com/Marcusng88/FraudGuard/shared/resilience"

	fglogging "github.com/Marcusng88/FraudGuard/shared/logging"
)

func main() {
	cfg := config.Load()

	log := fglogging.NewLogger(&fglogging.Config{
		Level:       fglogging.LevelInfo,
		Service:     cfg.ServiceName,
		Environment: cfg.Environment,
		Output:      os.Stdout,
		PrettyLog:   cfg.Environment == "development",
		AddCaller:   true,
	})

	if cfg.Sentry.DSN != "" {
		if err := monitoring.InitSentry(&monitoring.SentryConfig{
			DSN:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			ServiceName: cfg.ServiceName,
		}); err != nil {
			log.WithError(err).Warn("sentry initialization failed, continuing without it")
		}
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("fraudguard-service exited with error")
	}
}

func run(cfg *config.Config, log *fglogging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewPostgres(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("postgres health check: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	rdb, err := redis.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	if err := rdb.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}

	mq, err := sharedmessaging.NewRabbitMQ(cfg.RabbitMQ)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer mq.Close()

	repo := repository.NewRepository(db)

	breakers := resilience.NewCircuitBreakerGroup()
	retryBase := cfg.Fraud.RetryBaseDelay
	retryAttempts := cfg.Fraud.RetryMaxAttempts
	retryBackoff := cfg.Fraud.RetryBackoffFactor
	concurrency := cfg.Fraud.ProviderConcurrency

	visionClient := providers.NewVisionClient(
		cfg.Providers.VisionAPIKey, cfg.Providers.VisionModel, cfg.Providers.VisionBaseURL,
		cfg.Providers.HTTPTimeout, breakers, retryAttempts, retryBase, retryBackoff, concurrency,
	)
	embeddingClient := providers.NewEmbeddingClient(
		cfg.Providers.EmbeddingAPIKey, cfg.Providers.EmbeddingModel, cfg.Providers.EmbeddingBaseURL,
		cfg.Fraud.EmbeddingDimension, cfg.Providers.HTTPTimeout, breakers, retryAttempts, retryBase, retryBackoff, concurrency,
	)
	textClient := providers.NewTextClient(
		cfg.Providers.TextAPIKey, cfg.Providers.TextModel, cfg.Providers.TextBaseURL,
		cfg.Providers.HTTPTimeout, breakers, retryAttempts, retryBase, retryBackoff, concurrency,
	)

	simIndex := similarity.NewRedisIndex(rdb)

	queue := messaging.NewSchedulerQueue(mq, log)
	if err := queue.SetupInfrastructure(); err != nil {
		return fmt.Errorf("setup rabbitmq topology: %w", err)
	}

	analyzer := service.NewAnalyzer(visionClient, embeddingClient, textClient, simIndex, service.AnalyzerConfig{
		SimilarityThreshold:      cfg.Fraud.SimilarityThreshold,
		FraudConfidenceThreshold: cfg.Fraud.ConfidenceThreshold,
		SimilarityLimit:          cfg.Fraud.SimilarityQueryLimit,
	}, log)

	lifecycle := service.NewLifecycleManager(repo, queue, log)

	m := metrics.NewMetrics("fraudguard", cfg.ServiceName)

	scheduler := service.NewScheduler(analyzer, lifecycle, simIndex, queue, m, log, service.SchedulerConfig{
		MaxInFlight: concurrency * 4,
	})

	startBackgroundConsumers(ctx, queue, log)

	handlers := httpapi.NewHandlers(scheduler, lifecycle, simIndex, log)
	router := httpapi.NewRouter(handlers, m, cfg.API.RequestTimeout)

	srv := &http.Server{
		Addr:         cfg.API.Host + ":" + cfg.API.Port,
		Handler:      router,
		ReadTimeout:  cfg.API.RequestTimeout,
		WriteTimeout: cfg.API.RequestTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("fraudguard-service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	monitoring.FlushSentry(2 * time.Second)
	return nil
}

// startBackgroundConsumers subscribes to all three domain.BackgroundQueue
// job kinds: embedding persistence, blockchain sync notifications, and
// auto-relist sweeps. Each handler only logs receipt of the job; none
// of them retries the scheduler's similarity upsert or changes state.
func startBackgroundConsumers(ctx context.Context, queue *messaging.SchedulerQueue, log *fglogging.Logger) {
	queue.ConsumeEmbeddingPersist(ctx, func(ctx context.Context, job domain.EmbeddingPersistJob) error {
		log.WithField("nft_id", job.NFTID).Info("embedding persist job received")
		return nil
	})
	queue.ConsumeSyncNotify(ctx, func(ctx context.Context, job domain.SyncNotifyJob) error {
		log.WithField("nft_id", job.NFTID).WithField("sui_object_id", job.SuiObjectID).Info("sync notify job received")
		return nil
	})
	queue.ConsumeAutoRelist(ctx, func(ctx context.Context, job domain.AutoRelistJob) error {
		log.WithField("listing_id", job.ListingID).Info("auto relist job received")
		return nil
	})
}

func runMigrations(cfg *config.Config) error {
	url := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.PostgresUser, cfg.Postgres.PostgresPassword,
		cfg.Postgres.PostgresHost, cfg.Postgres.PostgresPort,
		cfg.Postgres.PostgresDatabase, cfg.Postgres.PostgresSSLMode,
	)
	migrator, err := migration.NewMigrator(&migration.Config{
		DatabaseURL: url,
		Service:     cfg.ServiceName,
		SchemaName:  "public",
		Migrations:  migrations.FS,
	})
	if err != nil {
		return err
	}
	return migrator.Migrate()
}
