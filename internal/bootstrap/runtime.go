package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nebryx/authz"
	"github.com/nebryx/authz/internal/httpapi"
	"github.com/nebryx/authz/internal/postgres"
	promexport "github.com/nebryx/authz/metrics/export/prometheus"
	"github.com/nebryx/authz/uid"
	"github.com/redis/go-redis/v9"
)

// Runtime owns the daemon's connections and HTTP server.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	engine     *authz.Engine
	httpServer *http.Server
	cleanupFn  func()
}

// NewRuntime loads configuration, connects the stores, runs migrations and
// builds the engine and router.
func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("service", cfg.AppName)
	slog.SetDefault(logger)
	logger.Info("bootstrapping authorization daemon", "http_port", cfg.HTTPPort, "gateway", cfg.Gateway)

	codec, err := cfg.Codec()
	if err != nil {
		return nil, fmt.Errorf("init field codec: %w", err)
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repos := postgres.NewRepositories(db, postgres.Options{
		Codec:                codec,
		IDs:                  uid.New(cfg.Authz.Identifier.MaxAttempts),
		UserPrefix:           cfg.Authz.Identifier.UserPrefix,
		ServiceAccountPrefix: cfg.Authz.Identifier.ServiceAccountPrefix,
		ActivityBatchSize:    cfg.ActivityBatchSize,
	})
	if cfg.SeedPermissions {
		n, err := repos.Rules.Seed(ctx, cfg.Authz.Permission.BasePath)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("seed permissions: %w", err)
		}
		if n > 0 {
			logger.Info("permissions seeded", "operation", "seed_permissions", "count", n)
		}
	}

	redisClient, err := connectRedis(cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	engine, err := authz.New().
		WithConfig(cfg.Authz).
		WithRedis(redisClient).
		WithDirectory(repos.Directory).
		WithKeyStore(repos.Keys).
		WithRuleStore(repos.Rules).
		WithActivityWriter(repos.Activities).
		WithLogger(logger).
		Build()
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	exporter := promexport.NewExporter(engine)
	router := httpapi.NewRouter(httpapi.NewHandler(engine, logger), exporter.Handler())

	return &Runtime{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		cleanupFn: func() {
			engine.Close()
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

// RunAPI serves HTTP until SIGINT/SIGTERM or a server failure, then drains
// in-flight requests and the activity log.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := r.engine.WatchRules(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("rules watcher stopped", "operation", "watch_rules", "outcome", "failure", "error", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.cleanupFn()
	if dropped := r.engine.AuditDropped(); dropped > 0 {
		r.logger.Warn("activity records dropped", "count", dropped)
	}
	return runErr
}

// connectRedis accepts either a redis:// URL or a bare host:port.
func connectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}
