package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "timeline-service/contracts/mq"
	"timeline-service/internal/service/worker"
	"timeline-service/internal/testutil"
	"timeline-service/pkg/util"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type fakeRebuilder struct {
	calls []int
	errs  []error
}

func (f *fakeRebuilder) Rebuild(ctx context.Context, timelineID int) (*worker.Snapshot, error) {
	f.calls = append(f.calls, timelineID)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &worker.Snapshot{TimelineID: timelineID}, nil
}

func newHandler(rb *fakeRebuilder) (*MilestoneUpdatedHandler, *testutil.FakeRedis) {
	rdb := testutil.NewFakeRedis()
	logger := zap.NewNop()
	h := NewMilestoneUpdatedHandler(
		rb,
		util.NewDeduper(rdb, time.Hour, logger),
		util.NewRetryCounter(rdb, time.Hour),
		logger,
	)
	return h, rdb
}

func payload(t *testing.T, eventID string, timelineID int) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mqcontracts.MilestoneUpdatedPayload{
		EventID:     eventID,
		TimelineID:  timelineID,
		MilestoneID: 1,
		ActorID:     7,
		OccurredAt:  time.Now(),
	})
	require.NoError(t, err)
	return raw
}

func TestHandleMilestoneUpdated_RebuildsOncePerEvent(t *testing.T) {
	rb := &fakeRebuilder{}
	h, _ := newHandler(rb)
	ctx := context.Background()

	require.NoError(t, h.HandleMilestoneUpdated(ctx, payload(t, "ev-1", 3)))
	require.NoError(t, h.HandleMilestoneUpdated(ctx, payload(t, "ev-1", 3)))
	require.NoError(t, h.HandleMilestoneUpdated(ctx, payload(t, "ev-2", 3)))

	assert.Equal(t, []int{3, 3}, rb.calls)
}

func TestHandleMilestoneUpdated_MalformedPayloadIsNotRetryable(t *testing.T) {
	h, _ := newHandler(&fakeRebuilder{})

	err := h.HandleMilestoneUpdated(context.Background(), json.RawMessage(`{"event_id":`))
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.False(t, retryable)

	err = h.HandleMilestoneUpdated(context.Background(), json.RawMessage(`{"timeline_id":3}`))
	require.Error(t, err)
	retryable, _ = util.IsRetryableError(err)
	assert.False(t, retryable)
}

func TestHandleMilestoneUpdated_RetryableErrorReleasesDedup(t *testing.T) {
	rb := &fakeRebuilder{errs: []error{timeoutErr{}}}
	h, rdb := newHandler(rb)
	ctx := context.Background()

	err := h.HandleMilestoneUpdated(ctx, payload(t, "ev-1", 3))
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)

	_, held := rdb.Value("dedup:timeline_index:ev-1")
	assert.False(t, held)
	count, err := h.retryCounter.Get(ctx, util.FormatRetryKey(handlerName, "ev-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// redelivery succeeds and clears the counter
	require.NoError(t, h.HandleMilestoneUpdated(ctx, payload(t, "ev-1", 3)))
	_, ok := rdb.Value("retry:timeline_index:ev-1")
	assert.False(t, ok)
	assert.Len(t, rb.calls, 2)
}

func TestHandleMilestoneUpdated_GivesUpAfterMaxRetries(t *testing.T) {
	errs := make([]error, maxRetries+1)
	for i := range errs {
		errs[i] = timeoutErr{}
	}
	rb := &fakeRebuilder{errs: errs}
	h, _ := newHandler(rb)
	ctx := context.Background()

	for i := 0; i < maxRetries; i++ {
		err := h.HandleMilestoneUpdated(ctx, payload(t, "ev-1", 3))
		retryable, _ := util.IsRetryableError(err)
		require.True(t, retryable, "attempt %d", i+1)
	}

	err := h.HandleMilestoneUpdated(ctx, payload(t, "ev-1", 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	retryable, _ := util.IsRetryableError(err)
	assert.False(t, retryable)
}

func TestHandleMilestoneUpdated_DeletedTimelineIsAcked(t *testing.T) {
	rb := &fakeRebuilder{errs: []error{fmt.Errorf("%w: %d", worker.ErrTimelineGone, 3)}}
	h, _ := newHandler(rb)

	assert.NoError(t, h.HandleMilestoneUpdated(context.Background(), payload(t, "ev-1", 3)))
}

func TestHandleMilestoneUpdated_NonRetryableErrorIsReturned(t *testing.T) {
	rb := &fakeRebuilder{errs: []error{errors.New("encode snapshot: bad value")}}
	h, rdb := newHandler(rb)

	err := h.HandleMilestoneUpdated(context.Background(), payload(t, "ev-1", 3))
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.False(t, retryable)
	_, ok := rdb.Value("retry:timeline_index:ev-1")
	assert.False(t, ok)
}
