package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	httpadapter "github.com/tempora/tempora/internal/adapter/http"
	"github.com/tempora/tempora/internal/adapter/notify"
	"github.com/tempora/tempora/internal/adapter/persistence"
	"github.com/tempora/tempora/internal/adapter/ratelimit"
	"github.com/tempora/tempora/internal/config"
	"github.com/tempora/tempora/internal/logger"
	"github.com/tempora/tempora/internal/ports"
	"github.com/tempora/tempora/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	appLogger.WithField("environment", cfg.Server.Environment).Info("application starting")

	var repo ports.TimeEntryRepository
	if cfg.Database.MockDB {
		appLogger.Warn("running with in-memory storage; data will not survive a restart")
		repo = persistence.NewMemoryTimeEntryRepository()
	} else {
		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			appLogger.WithError(err).Fatal("failed to open database")
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.Database.MaxConnections)
		db.SetConnMaxIdleTime(cfg.Database.MaxIdleTime)

		pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			appLogger.WithError(err).Fatal("failed to ping database")
		}
		appLogger.Info("database connection established")

		repo = persistence.NewPostgresTimeEntryRepository(db)
	}

	clock := ports.SystemClock{}
	timerUseCase := usecase.NewTimerUseCase(repo, clock, appLogger)
	entryUseCase := usecase.NewEntryUseCase(repo, clock, appLogger)
	lifecycleUseCase := usecase.NewLifecycleUseCase(repo, clock, appLogger)
	notifier := notify.NewLogNotifier(appLogger)

	limiter, err := ratelimit.New(ratelimit.Config{
		Enabled:  cfg.RateLimit.Enabled,
		RedisURL: cfg.Redis.URL,
	}, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to initialize rate limiter")
	}

	handler := httpadapter.NewTimeEntryHandler(timerUseCase, entryUseCase, lifecycleUseCase, notifier, appLogger)
	auth := httpadapter.NewAuthMiddleware(cfg.Auth.JWTSecret)

	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		RateLimitEnabled:  cfg.RateLimit.Enabled,
		RateLimitAttempts: cfg.RateLimit.Attempts,
		RateLimitWindow:   cfg.RateLimit.Window,
	}, handler, auth, limiter, appLogger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("graceful shutdown failed")
	}
	appLogger.Info("server stopped")
}
