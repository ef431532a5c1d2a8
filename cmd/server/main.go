package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Knifucrab/mauro-zen-notes/internal/handler"
	"github.com/Knifucrab/mauro-zen-notes/internal/infrastructure/logger"
	"github.com/Knifucrab/mauro-zen-notes/internal/infrastructure/redis"
	"github.com/Knifucrab/mauro-zen-notes/internal/observability/metrics"
	"github.com/Knifucrab/mauro-zen-notes/internal/observability/tracing"
	"github.com/Knifucrab/mauro-zen-notes/internal/reliability/retry"
	"github.com/Knifucrab/mauro-zen-notes/internal/repository"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/audit"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/auth"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/middleware"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/ratelimit"
	"github.com/Knifucrab/mauro-zen-notes/internal/service"
	"github.com/Knifucrab/mauro-zen-notes/pkg/config"
	"github.com/Knifucrab/mauro-zen-notes/pkg/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "zen-notes: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize structured logger
	log := logger.New(logger.Config{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
	})
	slog.SetDefault(log)
	log.Info("starting Zen Notes server", slog.String("environment", cfg.Environment))

	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, using the development secret")
	}

	// 3. Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, log, tracing.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 4. Connect to the database and apply migrations
	pool, err := retry.Do(ctx, retry.DefaultConfig(), log, "database connect",
		func(ctx context.Context) (*database.ConnectionPool, error) {
			pool, err := database.NewConnectionPool(ctx, &cfg.Database, log)
			if err != nil {
				if _, dialectErr := database.ParseDialect(cfg.Database.Driver); dialectErr != nil {
					return nil, retry.Permanent(err)
				}
				return nil, err
			}
			return pool, nil
		})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// 5. Connect to Redis when configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
	}

	// 6. Initialize repositories
	store := repository.NewStore(pool, log)

	// 7. Initialize services
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)

	authService := service.NewAuthService(store.Users(), hasher, tokenManager, log)
	noteService := service.NewNoteService(store, log)
	tagService := service.NewTagService(store, log)

	if created, err := authService.EnsureAdmin(ctx, cfg.BootstrapAdmin); err != nil {
		return fmt.Errorf("failed to bootstrap admin user: %w", err)
	} else if created {
		log.Info("default admin account created", slog.String("username", service.AdminUsername))
	}

	// 7a. Initialize security components
	memoryLimiter := ratelimit.NewLimiter(cfg.RateLimitAuthRequests, cfg.RateLimitWindow)
	defer memoryLimiter.Stop()

	var authLimiter ratelimit.Limiter = memoryLimiter
	var redisPinger handler.Pinger
	if redisClient != nil {
		authLimiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitAuthRequests, cfg.RateLimitWindow, memoryLimiter, log)
		redisPinger = redisClient
	}
	auditLogger := audit.NewLogger(log, middleware.RequestIDFromContext)

	// 8. Initialize handlers and routes
	respond := handler.NewResponder(log, cfg.DebugErrors)
	mux := handler.NewMux(handler.Routes{
		Auth:        handler.NewAuthHandler(authService, respond, auditLogger, log),
		Notes:       handler.NewNoteHandler(noteService, respond, auditLogger, log),
		Tags:        handler.NewTagHandler(tagService, noteService, respond, auditLogger, log),
		Health:      handler.NewHealthHandler(handler.PingFunc(pool.Health), redisPinger, respond, log),
		Tokens:      tokenManager,
		Users:       store.Users(),
		AuthLimiter: authLimiter,
		Metrics:     promhttp.Handler(),
		Logger:      log,
	})

	// Chain middleware: tracing -> CORS -> request ID -> metrics -> mux
	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	rootHandler := otelhttp.NewHandler(
		corsMiddleware(middleware.RequestID(log)(metrics.HTTPMetricsMiddleware(mux))),
		"zen-notes-api",
	)

	// 9. Start HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           rootHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("db_driver", cfg.Database.Driver),
		slog.Duration("token_ttl", tokenManager.TTL()),
		slog.Int("auth_rate_limit", cfg.RateLimitAuthRequests),
		slog.Duration("auth_rate_limit_window", cfg.RateLimitWindow),
		slog.Bool("redis", redisClient != nil),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	log.Info("server stopped")
	return nil
}
