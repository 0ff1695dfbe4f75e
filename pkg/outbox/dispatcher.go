package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"timeline-service/pkg/db"
	"timeline-service/pkg/trace"
)

// EventPublisher is satisfied by *mq.Publisher
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Store is the slice of Repository the dispatcher needs inside one batch
type Store interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int, cause error) error
}

// StoreRunner runs fn against a Store scoped to one transaction
type StoreRunner func(ctx context.Context, fn func(ctx context.Context, store Store) error) error

// PoolRunner runs each batch in its own transaction so FOR UPDATE SKIP LOCKED
// keeps concurrent dispatchers off the same rows.
func PoolRunner(pool db.TxBeginner) StoreRunner {
	return func(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
		return db.WithTx(ctx, pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
			return fn(ctx, NewRepository(tx))
		})
	}
}

// Dispatcher polls the outbox and publishes due events to MQ
type Dispatcher struct {
	run        StoreRunner
	publisher  EventPublisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(run StoreRunner, publisher EventPublisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		run:        run,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start blocks until ctx is cancelled; run it in a goroutine
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.ProcessPendingEvents(ctx); err != nil {
				d.logger.Error("Outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessPendingEvents publishes one batch and returns how many were sent
func (d *Dispatcher) ProcessPendingEvents(ctx context.Context) (int, error) {
	sent := 0
	err := d.run(ctx, func(ctx context.Context, store Store) error {
		events, err := store.GetPendingEvents(ctx, d.batchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		d.logger.Debug("Processing pending events", zap.Int("count", len(events)))

		for _, event := range events {
			if err := d.publishEvent(ctx, event); err != nil {
				d.logger.Warn("Failed to publish outbox event",
					zap.Int64("event_id", event.ID),
					zap.String("routing_key", event.RoutingKey),
					zap.Int("retry_count", event.RetryCount),
					zap.Error(err),
				)
				if err := store.MarkAsFailed(ctx, event.ID, d.maxRetries, err); err != nil {
					return err
				}
				continue
			}

			if err := store.MarkAsSent(ctx, event.ID); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	return sent, err
}

func (d *Dispatcher) publishEvent(ctx context.Context, event *Event) error {
	return publishStored(ctx, d.publisher, event)
}

// publishStored republishes the stored payload verbatim, restoring its trace id
func publishStored(ctx context.Context, publisher EventPublisher, event *Event) error {
	if !json.Valid(event.Payload) {
		return fmt.Errorf("event %d has invalid payload", event.ID)
	}

	var envelope struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(event.Payload, &envelope); err == nil && envelope.TraceID != "" {
		ctx = trace.WithContext(ctx, envelope.TraceID)
	}

	return publisher.PublishWithContext(ctx, event.RoutingKey, event.Payload)
}
