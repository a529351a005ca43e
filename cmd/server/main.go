package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course_messaging/internal/config"
	"course_messaging/internal/handler"
	"course_messaging/internal/middleware"
	"course_messaging/internal/realtime"
	"course_messaging/internal/repository"
	"course_messaging/internal/repository/memstore"
	"course_messaging/internal/service"
	"course_messaging/pkg/jwt"
	"course_messaging/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)
	defer logger.Sync(appLogger)

	var rdb *redis.Client
	if cfg.RateLimit.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		// Limiting fails open, so an unreachable Redis only warns.
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			appLogger.Warn("Redis unavailable, rate limiting will fail open", "error", err)
		} else {
			appLogger.Info("Redis connection established")
		}
	}

	var (
		repos   *repository.Repositories
		storage handler.Pinger
	)
	switch cfg.Database.Driver {
	case config.StorageDriverMemory:
		store := memstore.New()
		store.SeedDemoUsers()
		repos = store.Repositories()
		if rdb != nil {
			repos.RateLimit = repository.NewRateLimitRepository(rdb, appLogger)
		}
		appLogger.Warn("Using in-memory storage, data is lost on restart")
	default:
		dbPool, err := newPool(cfg.Database)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", "error", err)
		}
		defer dbPool.Close()
		appLogger.Info("Database connection established")

		repos = repository.NewRepositories(dbPool, rdb, appLogger)
		storage = dbPool
	}

	auth := service.NewAuthService(jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL), appLogger)
	gateway := realtime.NewGateway(auth, repos.Conversation, realtime.NewMemoryPresence(), cfg.Realtime, appLogger)
	services := service.NewServices(repos, auth, gateway, cfg, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, cfg.RateLimit.Requests, appLogger)

	handlers := handler.NewHandlers(services, gateway, storage, cfg, appLogger)
	router := handler.NewRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr, "storage", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}
	// Hijacked websocket connections are not tracked by http.Server.
	if err := gateway.Shutdown(ctx); err != nil {
		appLogger.Error("Realtime gateway did not drain", "error", err)
	}

	appLogger.Info("Server exited")
}

func newPool(cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
