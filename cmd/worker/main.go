package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusevents/internal/actionlog"
	"campusevents/internal/config"
	"campusevents/internal/logx"
	"campusevents/internal/queue"
	"campusevents/internal/store"
)

// Worker drains the action-log queue into the action_logs table.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logx.New(os.Stderr, cfg.LogLevel, cfg.LogFormat).With(logx.String("service", "worker"))

	if cfg.QueueBackend != "redis" {
		log.Error("worker needs QUEUE_BACKEND=redis; the memory queue is drained by the api process")
		os.Exit(2)
	}
	if cfg.DatabaseDriver == "memory" {
		log.Error("worker needs a SQL database")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := store.Open(openCtx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err == nil {
		err = db.Migrate(openCtx)
	}
	cancel()
	if err != nil {
		log.Error("db connect failed", logx.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		log.Warn("redis not reachable yet; will keep retrying", logx.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(rdb.Client, cfg.QueueKey)
	q.OnError(func(err error) { log.Warn("queue consume error", logx.Err(err)) })

	log.Info("worker started, waiting for messages", logx.String("queue", cfg.QueueKey))
	if err := actionlog.NewStore(db, log).Drain(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped", logx.Err(err))
		os.Exit(1)
	}
	log.Info("worker stopped")
}
