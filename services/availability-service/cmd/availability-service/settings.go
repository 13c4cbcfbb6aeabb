package main

import (
	"time"

	"github.com/md-rashed-zaman/apptslots/libs/config"
	"github.com/md-rashed-zaman/apptslots/libs/httpx"
	"github.com/md-rashed-zaman/apptslots/libs/kafkax"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/timeutil"
)

type settings struct {
	Service  string
	HTTPPort string
	GRPCPort string

	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	Brokers     []string
	JWTSecret   string

	Location     *time.Location
	StoreTimeout time.Duration
	CacheTTL     time.Duration
	NoShowGrace  time.Duration

	RequestTimeout time.Duration
	BodyLimit      int64

	RateLimitPerMinute int
	RateLimitFailOpen  bool

	CORS httpx.CORSPolicy

	OutboxPollEvery    time.Duration
	OutboxBatchSize    int
	OutboxWriteTimeout time.Duration
}

// loadSettings reads the environment, seeded from CONFIG_FILE when set.
func loadSettings() (settings, error) {
	if err := config.LoadFile(config.String("CONFIG_FILE", "")); err != nil {
		return settings{}, err
	}

	httpPort, err := config.Port("PORT", "8080")
	if err != nil {
		return settings{}, err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return settings{}, err
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return settings{}, err
	}
	loc, err := timeutil.ParseOffset(config.String("UTC_OFFSET", "Z"))
	if err != nil {
		return settings{}, err
	}

	return settings{
		Service:  config.String("SERVICE_NAME", "availability-service"),
		HTTPPort: httpPort,
		GRPCPort: grpcPort,

		DatabaseURL: config.String("DATABASE_URL", ""),
		SQLitePath:  config.String("SQLITE_PATH", "availability.db"),
		RedisURL:    config.String("REDIS_URL", ""),
		Brokers:     kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")),
		JWTSecret:   secret,

		Location:     loc,
		StoreTimeout: config.Duration("STORE_TIMEOUT", 5*time.Second),
		CacheTTL:     config.Duration("CACHE_TTL", 60*time.Second),
		NoShowGrace:  config.Duration("NO_SHOW_GRACE", 15*time.Minute),

		RequestTimeout: config.Duration("REQUEST_TIMEOUT", 15*time.Second),
		BodyLimit:      int64(config.Int("MAX_BODY_BYTES", 1<<20)),

		RateLimitPerMinute: config.Int("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitFailOpen:  config.Bool("RATE_LIMIT_FAIL_OPEN", true),

		CORS: httpx.CORSPolicy{
			AllowedOrigins: httpx.ParseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		},

		OutboxPollEvery:    config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    config.Int("OUTBOX_BATCH_SIZE", 50),
		OutboxWriteTimeout: config.Duration("OUTBOX_WRITE_TIMEOUT", 10*time.Second),
	}, nil
}
