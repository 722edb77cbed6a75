package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
	"geoattend/internal/logging"
	"geoattend/internal/queue"
	"geoattend/internal/store"
	"geoattend/internal/worker"
)

// Worker consumes sign-in events and flags devices shared between students.
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

	if cfg.QueueBackend == "memory" {
		logger.Fatal("the worker needs QUEUE_BACKEND=redis; the memory queue only lives inside the API process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet; consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	repo := attendance.NewRepository(db.Client)
	svc := attendance.NewService(repo, repo, nil, logger, cfg.SecretKeyLength)
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)

	if err := worker.New(svc, logger).Run(ctx, q); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
}
