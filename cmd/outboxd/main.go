package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/incident-outbox/internal/collector"
	"github.com/kursadbilgin/incident-outbox/internal/config"
	"github.com/kursadbilgin/incident-outbox/internal/connectivity"
	"github.com/kursadbilgin/incident-outbox/internal/domain"
	"github.com/kursadbilgin/incident-outbox/internal/handler"
	"github.com/kursadbilgin/incident-outbox/internal/infra/migrations"
	"github.com/kursadbilgin/incident-outbox/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/incident-outbox/internal/infra/redis"
	"github.com/kursadbilgin/incident-outbox/internal/infra/sqlite"
	"github.com/kursadbilgin/incident-outbox/internal/observability"
	"github.com/kursadbilgin/incident-outbox/internal/ratelimit"
	"github.com/kursadbilgin/incident-outbox/internal/repository"
	"github.com/kursadbilgin/incident-outbox/internal/service"
	"github.com/kursadbilgin/incident-outbox/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, limiter, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal("store initialization failed", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	catalog, err := domain.NewFormCatalog(cfg.FormTypeList()...)
	if err != nil {
		logger.Fatal("invalid form catalog", zap.Error(err))
	}

	deliveryClient, err := collector.NewAppsScriptCollector(cfg.CollectorURL, cfg.CollectorTimeout)
	if err != nil {
		logger.Fatal("collector initialization failed", zap.Error(err))
	}

	outbox, err := service.NewOutboxService(store, deliveryClient, catalog, limiter, collectorScope(cfg.CollectorURL), logger)
	if err != nil {
		logger.Fatal("outbox service initialization failed", zap.Error(err))
	}
	metrics := observability.NewMetrics()
	outbox.SetMetrics(metrics)

	trigger, err := connectivity.NewTrigger(outbox, cfg.ResyncGracePeriod, logger)
	if err != nil {
		logger.Fatal("connectivity trigger initialization failed", zap.Error(err))
	}
	prober, err := connectivity.NewHTTPProber(cfg.ProbeURL, cfg.ProbeInterval, trigger, logger)
	if err != nil {
		logger.Fatal("connectivity prober initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, store)
	if err := handler.RegisterOutboxRoutes(app, outbox, trigger); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	if count, err := outbox.PendingCount(ctx); err == nil {
		metrics.SetPendingSubmissions(count)
		logger.Info("outbox loaded", zap.Int64("pending", count))
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return prober.Start(groupCtx)
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("incident-outbox api started", zap.String("addr", addr), zap.String("store", cfg.StoreDriver))
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		trigger.Stop()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("incident-outbox stopped with error", zap.Error(err))
		return
	}
	logger.Info("incident-outbox stopped")
}

// openStore builds the durable queue for the configured driver. The Redis
// backend also provides the shared rate limiter; the others pace in process.
func openStore(cfg *config.Config) (repository.SubmissionRepository, ratelimit.RateLimiter, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverRedis:
		rdb, err := infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := repository.NewRedisSubmissionRepo(rdb, "")
		if err != nil {
			_ = rdb.Close()
			return nil, nil, nil, err
		}
		limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, nil, err
		}
		return store, limiter, func() { _ = rdb.Close() }, nil

	case config.StoreDriverPostgres:
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return gormStore(db, cfg.RateLimitPerSec)

	default:
		db, err := sqlite.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return gormStore(db, cfg.RateLimitPerSec)
	}
}

func gormStore(db *gorm.DB, limitPerSec int) (repository.SubmissionRepository, ratelimit.RateLimiter, func(), error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, nil, nil, fmt.Errorf("database migrations failed: %w", err)
	}

	closeDB := func() { _ = sqlDB.Close() }
	return repository.NewGormSubmissionRepo(db), ratelimit.NewLocalRateLimiter(limitPerSec), closeDB, nil
}

func collectorScope(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return "collector"
	}
	return parsed.Host
}
