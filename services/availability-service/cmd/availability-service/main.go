package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/slotfinder/libs/config"
	"github.com/md-rashed-zaman/slotfinder/libs/db"
	"github.com/md-rashed-zaman/slotfinder/libs/httpx"
	"github.com/md-rashed-zaman/slotfinder/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotfinder/libs/otel"
	"github.com/md-rashed-zaman/slotfinder/libs/runtime"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/fixtures"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/grpcserver"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/scheduling"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		panic(err)
	}
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(healthcheck(grpcPort))
	}
	logger := runtime.NewLogger(service, runtime.ParseLevel(config.String("LOG_LEVEL", "info")))
	debugLogger := runtime.NewLogger(service, slog.LevelDebug)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		events scheduling.EventTypeStore
		avail  scheduling.AvailabilityStore
		checks []runtime.ReadyCheck
	)
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL, db.Options{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		events = storage.NewEventTypeRepository(pool)
		avail = storage.NewAvailabilityRepository(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		path := config.String("FIXTURES_PATH", "services/availability-service/internal/fixtures/testdata/fixtures.yaml")
		store, err := fixtures.Load(path)
		if err != nil {
			logger.Error("fixtures load failed", "path", path, "err", err)
			panic(err)
		}
		logger.Info("serving from fixtures", "path", path)
		events, avail = store, store
	}

	m := metrics.New(nil)
	opts := scheduling.Options{Metrics: m}

	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var (
		limiter   httpx.Middleware
		slotCache *cache.SlotCache
	)
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		slotCache = cache.NewSlotCache(rdb, config.Duration("SLOT_CACHE_TTL", 30*time.Second))
		opts.Cache = slotCache
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: slotCache.Ping})
		limiter = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service+":rl").
			Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	} else {
		limiter = httpx.NewRateLimiter(rateLimit, time.Minute).Middleware()
	}

	usersMode, err := availability.ParseUsersMode(config.String("SLOT_USERS_MODE", ""))
	if err != nil {
		panic(err)
	}
	svc := scheduling.NewService(events, avail, scheduling.Config{
		UsersMode:            usersMode,
		DynamicLength:        config.Int("DYNAMIC_EVENT_LENGTH_MINUTES", 30),
		DynamicMinimumNotice: config.Int("DYNAMIC_EVENT_MIN_NOTICE_MINUTES", 0),
		MaxConcurrentFetches: config.Int("MAX_CONCURRENT_FETCHES", 8),
	}, logger, opts)

	if brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")); len(brokers) > 0 {
		if slotCache == nil {
			logger.Warn("kafka configured without redis; booking events will not be consumed")
		} else {
			eventConsumer := consumer.New(logger, slotCache, consumer.Config{
				Brokers:   brokers,
				GroupID:   config.String("KAFKA_GROUP_ID", service),
				Topics:    config.List("KAFKA_BOOKING_TOPICS", "booking.appointment.booked.v1,booking.appointment.cancelled.v1"),
				DedupeTTL: config.Duration("KAFKA_DEDUPE_TTL", 24*time.Hour),
			}, consumer.InvalidationHandler(slotCache, logger), m)
			go eventConsumer.Run(ctx)
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	}

	slots := handlers.NewSlotsHandler(svc, logger)
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/v1/slots", httpx.Chain(http.HandlerFunc(slots.Slots),
		limiter,
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10))*time.Second),
	))

	handler := httpx.Chain(mux,
		httpx.WithRecover,
		httpx.WithRequestID,
		httpx.WithRequestLogger(logger, debugLogger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "availability")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	grpcSrv := grpcserver.New(logger, config.Duration("HEALTH_POLL_INTERVAL", 10*time.Second), checks...)
	go func() {
		if err := grpcSrv.Serve(ctx, lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// healthcheck asks the local gRPC health service for status and returns the exit code.
func healthcheck(grpcPort string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := grpcserver.CheckHealth(ctx, "127.0.0.1:"+grpcPort); err != nil {
		fmt.Fprintln(os.Stderr, "unhealthy:", err)
		return 1
	}
	return 0
}
