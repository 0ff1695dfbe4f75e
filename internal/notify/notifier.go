package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"timeline-service/pkg/circuitbreaker"
	"timeline-service/pkg/db"
	"timeline-service/pkg/logger"
	"timeline-service/pkg/metrics"
	"timeline-service/pkg/outbox"
	"timeline-service/pkg/trace"
)

// EventStore parks events the broker did not take
type EventStore interface {
	InsertEvent(ctx context.Context, q db.Querier, event *outbox.Event) error
}

// aggregate is implemented by payloads that know which entity they describe
type aggregate interface {
	Aggregate() (string, int64)
}

// Notifier publishes straight to MQ behind a circuit breaker. When the
// broker refuses, the event is parked in the outbox for the dispatcher.
type Notifier struct {
	publisher outbox.EventPublisher
	breaker   *circuitbreaker.CircuitBreaker
	events    EventStore
	logger    *zap.Logger
}

func NewNotifier(publisher outbox.EventPublisher, breaker *circuitbreaker.CircuitBreaker, events EventStore, logger *zap.Logger) *Notifier {
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	}
	return &Notifier{
		publisher: publisher,
		breaker:   breaker,
		events:    events,
		logger:    logger,
	}
}

// Publish returns nil once the event is either on the broker or durably
// parked; an error means it is lost unless the caller retries.
func (n *Notifier) Publish(ctx context.Context, event string, payload any, correlationID string) error {
	if correlationID != "" {
		ctx = trace.WithContext(ctx, correlationID)
	}
	log := logger.WithTrace(ctx, n.logger).With(zap.String("event", event))

	pubErr := n.breaker.Execute(func() error {
		return n.publisher.PublishWithContext(ctx, event, payload)
	})
	if pubErr == nil {
		metrics.IncrementEventPublish(event, "ok")
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("publish %s: %w (payload not parkable: %v)", event, pubErr, err)
	}

	parked := &outbox.Event{
		AggregateType: event,
		RoutingKey:    event,
		Payload:       raw,
		Status:        outbox.StatusPending,
		LastError:     pubErr.Error(),
	}
	if agg, ok := payload.(aggregate); ok {
		kind, id := agg.Aggregate()
		parked.AggregateType = kind
		parked.AggregateID = &id
	}

	if err := n.events.InsertEvent(ctx, nil, parked); err != nil {
		return fmt.Errorf("publish %s: %w (outbox insert failed: %v)", event, pubErr, err)
	}

	metrics.IncrementEventPublish(event, "parked")
	log.Warn("Event parked in outbox",
		zap.Int64("outbox_id", parked.ID),
		zap.String("breaker_state", n.breaker.GetState().String()),
		zap.Error(pubErr),
	)
	return nil
}
