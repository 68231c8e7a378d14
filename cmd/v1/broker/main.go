package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/peercall/broker/internal/v1/api"
	"github.com/peercall/broker/internal/v1/auth"
	"github.com/peercall/broker/internal/v1/config"
	"github.com/peercall/broker/internal/v1/health"
	"github.com/peercall/broker/internal/v1/logging"
	"github.com/peercall/broker/internal/v1/ratelimit"
	"github.com/peercall/broker/internal/v1/session"
	"github.com/peercall/broker/internal/v1/store"
	"github.com/peercall/broker/internal/v1/tracing"
)

func main() {
	// .env is a local development convenience; the deployed environment
	// injects real variables.
	for _, path := range []string{".env", "../../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		// Logging may not be initialized yet, so fail via stderr.
		os.Stderr.WriteString("environment validation failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode(), cfg.LogLevel); err != nil {
		os.Stderr.WriteString("logger initialization failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx := context.Background()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "peercall-broker", cfg.OTelCollectorAddr)
		if err != nil {
			logging.Warn(ctx, "tracing disabled, collector unreachable", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
			logging.Info(ctx, "tracing initialized", zap.String("collector", cfg.OTelCollectorAddr))
		}
	}

	// --- Durable store ---
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := store.Connect(connectCtx, cfg.DatabaseURI, cfg.DatabaseName)
	cancel()
	if err != nil {
		logging.Fatal(ctx, "database connection failed", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Close(closeCtx)
	}()

	indexCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.Users().EnsureIndexes(indexCtx)
	cancel()
	if err != nil {
		logging.Fatal(ctx, "index creation failed", zap.Error(err))
	}

	// --- Services ---
	tokens, err := auth.NewTokenService(cfg.AuthSecret)
	if err != nil {
		logging.Fatal(ctx, "token service initialization failed", zap.Error(err))
	}
	authService := auth.NewService(db.Users(), tokens)

	// --- Redis (optional, backs the distributed rate limit store) ---
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logging.Warn(ctx, "redis unreachable, falling back to memory stores", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		} else {
			logging.Info(ctx, "redis connected", zap.String("addr", cfg.RedisAddr))
		}
	}

	limiters, err := ratelimit.NewRateLimiter(redisClient)
	if err != nil {
		logging.Fatal(ctx, "rate limiter initialization failed", zap.Error(err))
	}

	// --- Chat persistence pipeline ---
	writer := store.NewChatWriter(db.Rooms(), 0)
	defer writer.Close()

	// --- Hub and router ---
	hub := session.NewHub(authService, authService, db.Rooms(), writer, cfg.CORSOrigin)

	router := api.NewRouter(api.RouterDeps{
		Config:   cfg,
		Handler:  api.NewHandler(authService, db.Rooms()),
		Auth:     authService,
		Hub:      hub,
		Health:   health.NewHandler(db, redisClient, hub),
		Limiters: limiters,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "broker listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "server failed", zap.Error(err))
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "forced shutdown", zap.Error(err))
	}

	if redisClient != nil {
		_ = redisClient.Close()
	}
	logging.Info(ctx, "shutdown complete")
}
