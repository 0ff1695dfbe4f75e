package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"timeline-service/config"
	mqcontracts "timeline-service/contracts/mq"
	"timeline-service/internal/mqhandler"
	"timeline-service/internal/repository"
	"timeline-service/internal/service/worker"
	"timeline-service/pkg/db"
	"timeline-service/pkg/logger"
	"timeline-service/pkg/mq"
	"timeline-service/pkg/otel"
	"timeline-service/pkg/redis"
	"timeline-service/pkg/util"
)

var version = "dev"

func main() {
	cfg := config.Load()
	log := logger.NewLogger(cfg.Server.LogLevel)
	defer log.Sync()

	log.Info("Starting timeline index worker...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg.OTel.ServiceName += "-worker"
	shutdownTracing, err := otel.Init(cfg.OTel, version, log)
	if err != nil {
		log.Fatal("OpenTelemetry init failed", zap.Error(err))
	}
	defer shutdownTracing()

	// Redis
	rdb, err := redis.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("Redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DB
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer pool.Close()

	store := repository.NewStore(pool, log)
	index := worker.NewTimelineIndexService(store, rdb, cfg.IndexTTL, log)
	handler := mqhandler.NewMilestoneUpdatedHandler(index, deduper, retryCounter, log)

	log.Info("Init consumer: timeline.index.q")
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "timeline.index.q", mqcontracts.EventMilestoneUpdated, log)
	if err != nil {
		log.Fatal("Consumer init failed", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(handler.HandleMilestoneUpdated)

	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Error("Consumer stopped", zap.Error(err))
			stop()
		}
	}()

	log.Info("Worker running")
	<-ctx.Done()
	log.Info("Shutting down worker")
	consumer.Stop()
}
