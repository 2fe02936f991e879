// Command gateway starts the webhook ingestion gateway: it wires
// Postgres, Redis, the ingestion pipeline, the detached forwarder, the
// retry dispatcher, and the HTTP admin plane together, then serves until
// shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webhookgw/webhookgw/config"
	"github.com/webhookgw/webhookgw/forwarder"
	"github.com/webhookgw/webhookgw/httpapi"
	"github.com/webhookgw/webhookgw/ingestion"
	pkgconfig "github.com/webhookgw/webhookgw/pkg/config"
	"github.com/webhookgw/webhookgw/pkg/environment"
	"github.com/webhookgw/webhookgw/pkg/httpserver"
	"github.com/webhookgw/webhookgw/pkg/jwt"
	"github.com/webhookgw/webhookgw/pkg/logger"
	"github.com/webhookgw/webhookgw/pkg/pg"
	redisconn "github.com/webhookgw/webhookgw/pkg/redis"
	"github.com/webhookgw/webhookgw/provider"
	"github.com/webhookgw/webhookgw/ratelimiter"
	"github.com/webhookgw/webhookgw/replay"
	"github.com/webhookgw/webhookgw/retrydispatch"
	"github.com/webhookgw/webhookgw/securitylog"
	"github.com/webhookgw/webhookgw/webhookevent"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.Config
	if err := loadConfig(&cfg); err != nil {
		return fmt.Errorf("gateway: load config: %w", err)
	}

	log := newLogger(cfg)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, pg.Config{
		ConnectionString:  cfg.DatabaseURL,
		RetryAttempts:     5,
		RetryInterval:     2 * time.Second,
		HealthCheckPeriod: time.Minute,
		MaxOpenConns:      10,
		MaxIdleConns:      5,
	})
	if err != nil {
		return fmt.Errorf("gateway: connect postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pg.Config{MigrationsPath: cfg.MigrationsPath, MigrationsTable: "schema_migrations"}, log); err != nil {
		return fmt.Errorf("gateway: migrate: %w", err)
	}

	redisClient, err := redisconn.Connect(ctx, redisconn.Config{
		ConnectionURL:  cfg.RedisURL,
		RetryAttempts:  5,
		RetryInterval:  2 * time.Second,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("gateway: connect redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	providers := provider.NewPGStore(pool)
	events := webhookevent.NewPGStore(pool)

	syncSecurityLog := securitylog.NewPGStorage(pool)
	securityLog, closeSecurityLog := securitylog.NewAsync(syncSecurityLog, securitylog.AsyncOptions{})

	replayStore := replay.NewRedisStore(redisClient, "replay:")
	limiter := ratelimiter.New(ratelimiter.NewRedisStore(redisClient), cfg.RateLimitMaxRequests, cfg.RateLimitWindow())

	breakers := forwarder.NewBreakers()
	sender := forwarder.NewSender(
		forwarder.WithTimeout(cfg.ForwardingTimeout()),
		forwarder.WithBreakers(breakers),
	)
	dispatcher := forwarder.NewDispatcher(sender, events, cfg.MaxForwardConcurr, log)

	pipeline := &ingestion.Pipeline{
		Providers:    providers,
		Limiter:      limiter,
		Replay:       replayStore,
		Events:       events,
		SecurityLog:  securityLog,
		Dispatch:     dispatcher,
		Logger:       log,
		ReplayWindow: cfg.ReplayProtectionWindow(),
	}

	retry := &retrydispatch.Dispatcher{Events: events, Providers: providers, Forward: dispatcher}

	jwtService, err := jwt.NewFromString(cfg.JWTSecretKey)
	if err != nil {
		return fmt.Errorf("gateway: init jwt service: %w", err)
	}

	router := &httpapi.Router{
		Pipeline:       pipeline,
		MaxPayloadSize: int64(cfg.MaxPayloadSizeBytes),
		Providers:      providers,
		Events:         events,
		Logs:           securityLog,
		Retry:          retry,
		JWT:            jwtService,
		CORSOrigins:    cfg.CORSOriginList(),
		Logger:         log,
		ReadyCheckFunc: []func(context.Context) error{pg.Healthcheck(pool), redisHealthcheck(redisClient)},
	}
	handler := router.Build(ctx)

	server := httpserver.New(
		httpserver.WithAddr(cfg.HTTPAddr),
		httpserver.WithLogger(log),
		httpserver.WithReadTimeout(10*time.Second),
		httpserver.WithWriteTimeout(30*time.Second),
		httpserver.WithIdleTimeout(120*time.Second),
		httpserver.WithShutdownTimeout(cfg.ShutdownGracePeriod),
		httpserver.WithStartHook(func(l *slog.Logger) {
			l.Info("gateway listening", "addr", cfg.HTTPAddr)
		}),
	)

	runErr := server.Run(ctx, handler)

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	dispatcher.Wait(drainCtx)

	if err := closeSecurityLog(drainCtx); err != nil {
		log.Error("gateway: close security log writer", "error", err)
	}

	return runErr
}

func loadConfig(cfg *config.Config) error {
	return pkgconfig.Load(cfg)
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	return logger.New(
		logger.WithEnvironment(cfg.Environment, "webhookgw"),
		logger.WithLevel(level),
		logger.WithContextExtractors(environment.LoggerExtractor()),
	)
}

func redisHealthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
