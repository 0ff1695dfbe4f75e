package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"timeline-service/internal/model"
	"timeline-service/internal/testutil"
)

type fakeReader struct {
	timelines  map[int]*model.Timeline
	milestones map[int][]*model.Milestone
	err        error
}

func (r *fakeReader) FindTimeline(ctx context.Context, timelineID int) (*model.Timeline, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.timelines[timelineID], nil
}

func (r *fakeReader) ListMilestonesAfter(ctx context.Context, timelineID, after int) ([]*model.Milestone, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []*model.Milestone
	for _, m := range r.milestones[timelineID] {
		if m.Order > after {
			out = append(out, m)
		}
	}
	return out, nil
}

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newIndexFixture() (*fakeReader, *testutil.FakeRedis, *TimelineIndexService) {
	end := day("2024-01-10")
	done := day("2024-01-04")
	reader := &fakeReader{
		timelines: map[int]*model.Timeline{
			3: {ID: 3, Name: "launch", EndDate: &end},
		},
		milestones: map[int][]*model.Milestone{
			3: {
				{ID: 1, TimelineID: 3, Order: 1, Name: "design", Duration: 4, StartDate: day("2024-01-01"), EndDate: day("2024-01-04"), CompletionDate: &done, Status: model.StatusCompleted},
				{ID: 2, TimelineID: 3, Order: 2, Name: "hidden", Duration: 1, StartDate: day("2024-01-05"), EndDate: day("2024-01-05"), Status: model.StatusActive, Hidden: true},
				{ID: 3, TimelineID: 3, Order: 3, Name: "build", Duration: 5, StartDate: day("2024-01-06"), EndDate: day("2024-01-10"), Status: model.StatusActive},
			},
		},
	}
	rdb := testutil.NewFakeRedis()
	svc := NewTimelineIndexService(reader, rdb, time.Hour, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC) }
	return reader, rdb, svc
}

func TestRebuild_WritesSnapshotAndEndDateIndex(t *testing.T) {
	_, rdb, svc := newIndexFixture()
	ctx := context.Background()

	snap, err := svc.Rebuild(ctx, 3)
	require.NoError(t, err)
	require.Len(t, snap.Milestones, 3)
	require.NotNil(t, snap.EndDate)
	assert.Equal(t, "2024-01-10", *snap.EndDate)
	require.NotNil(t, snap.ActiveMilestoneID)
	assert.Equal(t, 3, *snap.ActiveMilestoneID, "hidden milestones are never the active one")
	require.NotNil(t, snap.Milestones[0].CompletionDate)
	assert.Equal(t, "2024-01-04", *snap.Milestones[0].CompletionDate)
	assert.Equal(t, 1, rdb.Pipes)

	raw, ok := rdb.Value("timeline:index:3")
	require.True(t, ok)
	var stored Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, 3, stored.TimelineID)
	assert.Equal(t, time.Hour, rdb.ExpiryOf("timeline:index:3"))

	score, ok := rdb.Score(endDateIndexKey, "3")
	require.True(t, ok)
	assert.Equal(t, float64(day("2024-01-10").Unix()), score)
}

func TestRebuild_MissingTimelineClearsIndex(t *testing.T) {
	reader, rdb, svc := newIndexFixture()
	ctx := context.Background()

	_, err := svc.Rebuild(ctx, 3)
	require.NoError(t, err)

	delete(reader.timelines, 3)
	_, err = svc.Rebuild(ctx, 3)
	assert.ErrorIs(t, err, ErrTimelineGone)

	_, ok := rdb.Value("timeline:index:3")
	assert.False(t, ok)
	_, ok = rdb.Score(endDateIndexKey, "3")
	assert.False(t, ok)
}

func TestRebuild_NoEndDateLeavesSortedSet(t *testing.T) {
	reader, rdb, svc := newIndexFixture()
	reader.timelines[3].EndDate = nil

	snap, err := svc.Rebuild(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, snap.EndDate)
	_, ok := rdb.Score(endDateIndexKey, "3")
	assert.False(t, ok)
}

func TestRebuild_PropagatesErrors(t *testing.T) {
	reader, rdb, svc := newIndexFixture()
	ctx := context.Background()

	reader.err = errors.New("connection refused")
	_, err := svc.Rebuild(ctx, 3)
	assert.EqualError(t, err, "connection refused")

	reader.err = nil
	rdb.Err = errors.New("redis down")
	_, err = svc.Rebuild(ctx, 3)
	assert.ErrorContains(t, err, "redis down")
}

func TestGet(t *testing.T) {
	_, _, svc := newIndexFixture()
	ctx := context.Background()

	snap, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, snap)

	_, err = svc.Rebuild(ctx, 3)
	require.NoError(t, err)

	snap, err = svc.Get(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "build", snap.Milestones[2].Name)
}

func TestEndingBetween(t *testing.T) {
	reader, _, svc := newIndexFixture()
	ctx := context.Background()

	later := day("2024-03-01")
	reader.timelines[4] = &model.Timeline{ID: 4, EndDate: &later}

	_, err := svc.Rebuild(ctx, 3)
	require.NoError(t, err)
	_, err = svc.Rebuild(ctx, 4)
	require.NoError(t, err)

	ids, err := svc.EndingBetween(ctx, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, []int{3}, ids)

	ids, err = svc.EndingBetween(ctx, day("2024-01-10"), day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, ids)
}
