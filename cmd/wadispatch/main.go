package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wadispatch/internal/config"
	"wadispatch/internal/constants"
	"wadispatch/internal/database"
	"wadispatch/internal/models"
	"wadispatch/internal/ratelimit"
	"wadispatch/internal/retry"
	"wadispatch/internal/service"
	"wadispatch/internal/tracing"
	"wadispatch/pkg/circuitbreaker"
	"wadispatch/pkg/whatsapp"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes recipient phone numbers)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wadispatch %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wadispatch")

	watcher := config.NewWatcher(*configPath, logger)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := watcher.Config()

	configureLogLevel(logger, cfg.LogLevel)
	watcher.OnReload(func(next *models.Config) {
		configureLogLevel(logger, next.LogLevel)
	})

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// The database is often not ready yet when the service starts
	// under an orchestrator, so opening it retries with backoff.
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		BaseDelay:   time.Duration(constants.DefaultDatabaseBackoffMs) * time.Millisecond,
		MaxDelay:    time.Duration(constants.DefaultDatabaseMaxBackoffMs) * time.Millisecond,
		MaxAttempts: constants.DefaultDatabaseRetryAttempts,
		Jitter:      true,
	})
	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	windowStore, redisClient := newWindowStore(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	limiter := ratelimit.NewLimiter(windowStore, cfg.RateLimit, logger)
	watcher.OnReload(func(next *models.Config) {
		limiter.UpdateQuotas(next.RateLimit)
	})

	waClient := whatsapp.NewClient(
		cfg.Provider.APIBaseURL,
		cfg.Provider.APIKey,
		time.Duration(cfg.Provider.TimeoutSec)*time.Second,
	)

	breakers := circuitbreaker.NewGroup(
		constants.DefaultBreakerMaxFailures,
		time.Duration(constants.DefaultBreakerTimeoutSec)*time.Second,
		logger,
	)

	hub := service.NewProgressHub(logger)
	sender := service.NewProviderSender(waClient, breakers, logger)
	tracker := service.NewRetryTracker(db, logger)
	processor := service.NewBatchProcessor(db, sender, limiter, tracker, logger)
	audience := service.NewAudienceResolver(db)
	orchestrator := service.NewOrchestrator(db, processor, waClient, audience, hub, cfg.Dispatch, logger)
	delivery := service.NewDeliveryTracker(db, hub, logger)

	scheduler := service.NewScheduler(db, orchestrator, cfg.RetentionDays, logger)
	scheduler.Start(ctx)

	server := NewServer(cfg, db, orchestrator, delivery, hub, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	scheduler.Stop()

	// Pause running jobs so a restart resumes them instead of leaving
	// recipients stranded mid-dispatch.
	if err := orchestrator.PauseAll(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to pause running jobs during shutdown")
	}
	orchestrator.Wait()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

func configureLogLevel(logger *logrus.Logger, configured string) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	if configured == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", configured)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// newWindowStore returns the redis-backed store when configured so
// rate-limit windows are shared across instances, otherwise an
// in-process store.
func newWindowStore(cfg *models.Config, logger *logrus.Logger) (ratelimit.WindowStore, *redis.Client) {
	if !cfg.Redis.Enabled {
		logger.Info("Using in-memory rate limit store")
		return ratelimit.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.WithField("addr", cfg.Redis.Addr).Info("Using redis rate limit store")
	return ratelimit.NewRedisStore(client), client
}
