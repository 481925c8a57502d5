package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sifan077/shortlink/config"
	appcache "github.com/sifan077/shortlink/internal/app/cache"
	"github.com/sifan077/shortlink/internal/app/idgen"
	appmetrics "github.com/sifan077/shortlink/internal/app/metrics"
	appmodel "github.com/sifan077/shortlink/internal/app/model"
	apprepository "github.com/sifan077/shortlink/internal/app/repository"
	appserver "github.com/sifan077/shortlink/internal/app/server"
	"github.com/sifan077/shortlink/internal/app/service"
	inthttp "github.com/sifan077/shortlink/internal/http/handler"
	"github.com/sifan077/shortlink/internal/infra/logger"
	infraMongo "github.com/sifan077/shortlink/internal/infra/mongo"
	infraNATS "github.com/sifan077/shortlink/internal/infra/nats"
	infraPostgres "github.com/sifan077/shortlink/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/shortlink/internal/infra/prometheus"
	infraRedis "github.com/sifan077/shortlink/internal/infra/redis"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log := logger.MustInit(logger.ForEnv(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")))
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log, err = logger.Init(logger.ForEnv(cfg.App.Env, cfg.App.LogLevel))
	if err != nil {
		log = logger.L()
		log.Warn("Falling back to default logger", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.Int("port", cfg.App.Port),
		zap.String("base_url", cfg.App.BaseURL),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("hit_mode", cfg.Shortener.HitMode),
		zap.Duration("cache_ttl", cfg.Shortener.CacheTTL),
		zap.Int("id_length", cfg.Shortener.IDLength),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
	log.Info("Server stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]inthttp.Check)

	repo, closeStore, err := openStore(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	urlCache := appcache.NewRedisURLCache(redisClient, cfg.Shortener.CachePrefix)
	checks["cache"] = urlCache.Ping

	ids, err := idgen.NewNanoID(cfg.Shortener.IDLength)
	if err != nil {
		return err
	}

	metrics := appmetrics.New(prometheus.DefaultRegisterer)
	if cfg.Prometheus.Enabled {
		promServer := infraPrometheus.NewServer(cfg.Prometheus, prometheus.DefaultGatherer)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Prometheus metrics server disabled")
	}

	direct := service.NewAsyncHitRecorder(repo, log, metrics, cfg.Shortener.HitTimeout)
	var hits service.HitRecorder = direct

	if cfg.Shortener.HitMode == "nats" {
		natsConn, js, err := infraNATS.Connect(cfg.NATS, log)
		if err != nil {
			return err
		}
		defer func() { _ = natsConn.Drain() }()
		log.Info("Connected to NATS successfully", zap.String("url", infraNATS.URL(cfg.NATS)))

		consumer := service.NewHitConsumer(js, log, repo, cfg.Shortener.HitTimeout)
		if err := consumer.Start(); err != nil {
			return err
		}
		defer consumer.Stop()

		hits = service.NewHitPublisher(js, direct, log)
		checks["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return fmt.Errorf("nats: %s", natsConn.Status())
			}
			return nil
		}
	}

	shortener := service.NewShortenerService(service.ShortenerDeps{
		Logger:            log,
		Repo:              repo,
		Cache:             urlCache,
		IDs:               ids,
		Hits:              hits,
		Metrics:           metrics,
		BaseURL:           cfg.App.BaseURL,
		CacheTTL:          cfg.Shortener.CacheTTL,
		MaxCreateAttempts: cfg.Shortener.MaxCreateAttempts,
		OperationTimeout:  cfg.Shortener.OperationTimeout,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:     log,
		Shortener:  shortener,
		Checks:     checks,
		CORSOrigin: cfg.App.CORSOrigin,
	})

	listenErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		log.Info("Starting HTTP server", zap.String("addr", addr))
		listenErr <- server.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber server exited: %w", err)
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down HTTP server cleanly", zap.Error(err))
	}
	if err := hits.Close(shutdownCtx); err != nil {
		log.Warn("Pending hit increments were dropped", zap.Error(err))
	}
	return nil
}

// openStore connects the configured backend, registers its readiness check and
// returns a close func for deferred cleanup.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger, checks map[string]inthttp.Check) (apprepository.URLRepository, func(), error) {
	switch cfg.Store.Backend {
	case "mongo":
		client, err := infraMongo.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		collection := infraMongo.Collection(client, cfg.Mongo)
		if err := apprepository.EnsureIndexes(ctx, collection); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		log.Info("Connected to MongoDB successfully", zap.String("collection", collection.Name()))

		checks["store"] = infraMongo.Ping(client)
		return apprepository.NewMongoURLRepository(collection), func() {
			_ = client.Disconnect(context.Background())
		}, nil

	default:
		gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: access sql db: %w", err)
		}
		if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.URLRecord{}); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}

		pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		log.Info("Connected to Postgres successfully",
			zap.String("postgres_host", cfg.Postgres.Host),
			zap.String("postgres_db", cfg.Postgres.Database),
		)

		checks["store"] = infraPostgres.Ping(pool)
		return apprepository.NewURLRepository(gormDB), func() {
			pool.Close()
			_ = sqlDB.Close()
		}, nil
	}
}
