package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/apptslots/libs/auth"
	"github.com/md-rashed-zaman/apptslots/libs/grpcx"
	"github.com/md-rashed-zaman/apptslots/libs/httpx"
	"github.com/md-rashed-zaman/apptslots/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptslots/libs/otel"
	"github.com/md-rashed-zaman/apptslots/libs/runtime"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/outbox"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(healthcheck())
	}

	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := runtime.NewLogger(cfg.Service)
	if err := run(cfg, logger); err != nil {
		logger.Error("service exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg settings, logger *slog.Logger) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	store, dbCheck, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	checks := []runtime.ReadyCheck{dbCheck}

	var (
		dayCache  cache.DayCache = cache.Noop{}
		rateLimit httpx.Middleware
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		dayCache = cache.NewRedis(rdb, cfg.CacheTTL, "avail")
		rateLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "rl:availability").
			Middleware(logger, cfg.RateLimitFailOpen)
		checks = append(checks, runtime.ReadyCheck{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			Optional: true,
		})
	} else {
		rateLimit = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
	}

	days := availability.NewService(store, dayCache, logger, availability.Config{
		Location:     cfg.Location,
		StoreTimeout: cfg.StoreTimeout,
	})
	bookings := booking.NewService(store, days, logger, booking.Config{
		Location:     cfg.Location,
		StoreTimeout: cfg.StoreTimeout,
		NoShowGrace:  cfg.NoShowGrace,
	})

	if len(cfg.Brokers) > 0 {
		writer := outbox.NewKafkaWriter(cfg.Brokers)
		defer func() { _ = writer.Close() }()
		publisher := outbox.NewPublisher(store, writer, logger, outbox.PublisherConfig{
			PollEvery:    cfg.OutboxPollEvery,
			BatchSize:    cfg.OutboxBatchSize,
			WriteTimeout: cfg.OutboxWriteTimeout,
		})
		go publisher.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Brokers), Optional: true})
	} else {
		logger.Warn("KAFKA_BROKERS not set; booking events stay in the outbox")
	}

	metrics.Register()
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", metrics.Handler())

	api := http.NewServeMux()
	handlers.Register(api,
		handlers.NewAvailabilityHandler(days, logger),
		handlers.NewBookingHandler(bookings, logger),
	)
	mux.Handle("/api/", httpx.Chain(api,
		httpx.WithCORS(cfg.CORS),
		rateLimit,
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
		auth.Authenticate(cfg.JWTSecret, nil),
	))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger, cfg.Service)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	health.SetServingStatus(cfg.Service, healthpb.HealthCheckResponse_SERVING)
	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
	return runErr
}
