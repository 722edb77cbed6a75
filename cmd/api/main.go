package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/config"
	"geoattend/internal/httpapi"
	"geoattend/internal/httpmiddleware"
	"geoattend/internal/logging"
	"geoattend/internal/queue"
	"geoattend/internal/store"
	"geoattend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Production())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		version, _ := db.Version(ctx)
		logger.Info("migrations applied", zap.Int64("version", version))
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	repo := attendance.NewRepository(db.Client)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}
	svc := attendance.NewService(repo, repo, q, logger, cfg.SecretKeyLength)

	// The memory queue is only visible inside this process, so it gets its own consumer.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := worker.New(svc, logger).Run(ctx, q); err != nil {
				logger.Error("in-process worker stopped", zap.Error(err))
			}
		}()
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "", cfg.RateLimitPerMin)
	}

	checks := map[string]func(context.Context) bool{"db": db.Healthy}
	if cfg.QueueBackend == "redis" || cfg.RateLimitBackend == "redis" {
		checks["redis"] = redisClient.Healthy
	}

	router := httpapi.NewRouter(httpapi.Options{
		Service: svc,
		Sessions: auth.Sessions{
			Issuer: auth.Issuer{
				Name:       cfg.JWTIssuer,
				Key:        []byte(cfg.JWTSigningKey),
				AccessTTL:  cfg.AccessTTL,
				RefreshTTL: cfg.RefreshTTL,
			},
			Store: auth.NewTokenStore(db.Client),
		},
		Limiter:       limiter,
		Logger:        logger,
		PublicBaseURL: cfg.PublicBaseURL,
		CORSOrigins:   cfg.CORSOrigins,
		Checks:        checks,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}
