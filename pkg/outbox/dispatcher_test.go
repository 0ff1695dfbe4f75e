package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"timeline-service/pkg/trace"
)

type published struct {
	routingKey string
	payload    any
	traceID    string
}

type fakePublisher struct {
	failKeys map[string]error
	sent     []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	if err := p.failKeys[routingKey]; err != nil {
		return err
	}
	p.sent = append(p.sent, published{routingKey: routingKey, payload: payload, traceID: trace.FromContext(ctx)})
	return nil
}

type failure struct {
	id         int64
	maxRetries int
	cause      error
}

type fakeStore struct {
	pending  []*Event
	getErr   error
	sentIDs  []int64
	failures []failure
}

func (s *fakeStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, maxRetries int, cause error) error {
	s.failures = append(s.failures, failure{id: id, maxRetries: maxRetries, cause: cause})
	return nil
}

func runnerFor(store Store) StoreRunner {
	return func(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
		return fn(ctx, store)
	}
}

func TestDispatcher_PublishesPendingBatch(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		{ID: 1, RoutingKey: "milestone.updated", Payload: json.RawMessage(`{"event_id":"a","trace_id":"t-1"}`)},
		{ID: 2, RoutingKey: "milestone.updated", Payload: json.RawMessage(`{"event_id":"b"}`)},
	}}
	pub := &fakePublisher{}
	d := NewDispatcher(runnerFor(store), pub, zap.NewNop()).WithBatchSize(10)

	sent, err := d.ProcessPendingEvents(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 2}, store.sentIDs)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, "t-1", pub.sent[0].traceID, "trace id is restored from the stored payload")
	assert.JSONEq(t, `{"event_id":"a","trace_id":"t-1"}`, string(pub.sent[0].payload.(json.RawMessage)))
}

func TestDispatcher_FailedPublishIsRescheduled(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		{ID: 1, RoutingKey: "broken", Payload: json.RawMessage(`{}`)},
		{ID: 2, RoutingKey: "milestone.updated", Payload: json.RawMessage(`{}`)},
	}}
	pub := &fakePublisher{failKeys: map[string]error{"broken": errors.New("no route")}}
	d := NewDispatcher(runnerFor(store), pub, zap.NewNop()).WithMaxRetries(3)

	sent, err := d.ProcessPendingEvents(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{2}, store.sentIDs)
	require.Len(t, store.failures, 1)
	assert.Equal(t, int64(1), store.failures[0].id)
	assert.Equal(t, 3, store.failures[0].maxRetries)
	assert.EqualError(t, store.failures[0].cause, "no route")
}

func TestDispatcher_InvalidPayloadIsNotPublished(t *testing.T) {
	store := &fakeStore{pending: []*Event{{ID: 5, RoutingKey: "milestone.updated", Payload: json.RawMessage(`{not json`)}}}
	pub := &fakePublisher{}
	d := NewDispatcher(runnerFor(store), pub, zap.NewNop())

	_, err := d.ProcessPendingEvents(context.Background())

	require.NoError(t, err)
	assert.Empty(t, pub.sent)
	require.Len(t, store.failures, 1)
}

func TestDispatcher_StoreErrorIsReturned(t *testing.T) {
	store := &fakeStore{getErr: errors.New("connection reset")}
	d := NewDispatcher(runnerFor(store), &fakePublisher{}, zap.NewNop())

	_, err := d.ProcessPendingEvents(context.Background())

	assert.ErrorContains(t, err, "connection reset")
}

func TestDispatcher_BatchSizeLimitsWork(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		{ID: 1, RoutingKey: "k", Payload: json.RawMessage(`{}`)},
		{ID: 2, RoutingKey: "k", Payload: json.RawMessage(`{}`)},
		{ID: 3, RoutingKey: "k", Payload: json.RawMessage(`{}`)},
	}}
	d := NewDispatcher(runnerFor(store), &fakePublisher{}, zap.NewNop()).WithBatchSize(2)

	sent, err := d.ProcessPendingEvents(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}
