package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"timeline-service/config"
	"timeline-service/internal/api"
	"timeline-service/internal/notify"
	"timeline-service/internal/repository"
	"timeline-service/internal/service/milestone"
	"timeline-service/pkg/circuitbreaker"
	"timeline-service/pkg/db"
	"timeline-service/pkg/logger"
	"timeline-service/pkg/mq"
	"timeline-service/pkg/otel"
	"timeline-service/pkg/outbox"
	"timeline-service/pkg/rbac"
)

var version = "dev"

func main() {
	cfg := config.Load()
	log := logger.NewLogger(cfg.Server.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(cfg.OTel, version, log)
	if err != nil {
		log.Fatal("OpenTelemetry init failed", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	if err := db.RunMigrations(ctx, cfg.DB, log); err != nil {
		log.Fatal("Migrations failed", zap.Error(err))
	}
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer pool.Close()

	// MQ
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("MQ publisher init failed", zap.Error(err))
	}
	defer publisher.Close()

	// outbox
	outboxRepo := outbox.NewRepository(pool)
	dispatcher := outbox.NewDispatcher(outbox.PoolRunner(pool), publisher, log).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)
	go dispatcher.Start(ctx)

	// services
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	notifier := notify.NewNotifier(publisher, breaker, outboxRepo, log)
	store := repository.NewStore(pool, log)
	milestoneService := milestone.NewService(store, notifier, log)
	replayService := outbox.NewReplayService(outboxRepo, publisher, log)

	// HTTP
	router := api.NewRouter(api.RouterConfig{
		JWTSecret:   cfg.JWT.Secret,
		Permissions: rbac.NewChecker(rbac.FromConfig(cfg.RBAC)),
		Readiness: map[string]api.ReadinessCheck{
			"postgres": pool.Ping,
			"rabbitmq": func(context.Context) error {
				if !publisher.IsConnected() {
					return errors.New("publisher disconnected")
				}
				return nil
			},
		},
		Logger: log,
	},
		api.NewMilestoneHandler(milestoneService, log),
		api.NewAdminHandler(replayService, log),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.Port), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
}
