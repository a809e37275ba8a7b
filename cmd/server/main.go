// Paradox Gate - adaptive challenge-response server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/paradox-gate/internal/api"
	"github.com/ashureev/paradox-gate/internal/challenge"
	"github.com/ashureev/paradox-gate/internal/config"
	"github.com/ashureev/paradox-gate/internal/engine"
	"github.com/ashureev/paradox-gate/internal/integrity"
	"github.com/ashureev/paradox-gate/internal/middleware"
	"github.com/ashureev/paradox-gate/internal/score"
	"github.com/ashureev/paradox-gate/internal/store"
	"github.com/ashureev/paradox-gate/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.UsingDevSecret() {
		slog.Warn("HMAC_SECRET not set, using development fallback key")
	}

	slog.Info("Starting server", "port", cfg.Port, "backend", cfg.StoreBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: durable primary probed at startup, in-process fallback
	// always available. A failed probe degrades to memory-only.
	st, backendInfo := buildStore(ctx, cfg)

	signer := integrity.NewSigner([]byte(cfg.HMACSecret))
	metrics := telemetry.New(prometheus.DefaultRegisterer)

	params := engine.DefaultParams()
	params.SessionTTL = cfg.SessionTTL
	eng := engine.New(st, challenge.NewCatalog(), score.NewEngine(), metrics, params)

	handler := api.NewHandler(eng, signer, backendInfo)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.With(middleware.PerMinute(cfg.SessionRateLimit).Handler).Post("/session", handler.CreateSession)
	r.With(middleware.PerMinute(cfg.RespondRateLimit).Handler).Post("/respond", handler.Respond)
	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	eng.StartReclaimer(ctx)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// buildStore wires the configured backend behind the failover wrapper.
// The returned info func feeds the health endpoint.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, func() (string, int)) {
	fallback := store.NewMemory()

	memoryOnly := func() (string, int) { return "memory", fallback.Len() }

	switch cfg.StoreBackend {
	case "sqlite":
		primary, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("SQLite unavailable, falling back to in-memory storage", "error", err)
			return fallback, memoryOnly
		}
		slog.Info("SQLite store connected", "path", cfg.DBPath)
		f := store.NewFailover(primary, "sqlite", fallback)
		return f, failoverInfo(f)

	case "memory":
		slog.Info("Using in-memory storage only")
		return fallback, memoryOnly

	default: // redis
		primary, err := store.NewRedis(cfg.RedisURL)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = primary.Ping(pingCtx)
			cancel()
		}
		if err != nil {
			slog.Error("Redis unavailable, falling back to in-memory storage", "error", err)
			return fallback, memoryOnly
		}
		slog.Info("Redis connection established")
		f := store.NewFailover(primary, "redis", fallback)
		return f, failoverInfo(f)
	}
}

func failoverInfo(f *store.Failover) func() (string, int) {
	return func() (string, int) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return f.Mode(ctx), f.FallbackLen()
	}
}
