package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"timeline-service/internal/model"
	"timeline-service/internal/service/milestone"
)

const endDateIndexKey = "timeline:index:by_end_date"

// ErrTimelineGone means the timeline was deleted before its index could be rebuilt
var ErrTimelineGone = errors.New("timeline no longer exists")

// ScheduleEntry is one milestone in a timeline snapshot
type ScheduleEntry struct {
	ID             int       `json:"id"`
	Order          int       `json:"order"`
	Name           string    `json:"name"`
	StartDate      string    `json:"start_date"`
	EndDate        string    `json:"end_date"`
	CompletionDate *string   `json:"completion_date,omitempty"`
	Status         string    `json:"status"`
	Hidden         bool      `json:"hidden"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot is the derived schedule of one timeline as cached in Redis
type Snapshot struct {
	TimelineID        int             `json:"timeline_id"`
	EndDate           *string         `json:"end_date,omitempty"`
	ActiveMilestoneID *int            `json:"active_milestone_id,omitempty"`
	Milestones        []ScheduleEntry `json:"milestones"`
	RebuiltAt         time.Time       `json:"rebuilt_at"`
}

// TimelineIndexService rebuilds per-timeline schedule snapshots from the
// authoritative store and keeps a sorted set of timelines by end date.
type TimelineIndexService struct {
	reader milestone.Reader
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewTimelineIndexService(reader milestone.Reader, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *TimelineIndexService {
	return &TimelineIndexService{
		reader: reader,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func snapshotKey(timelineID int) string {
	return fmt.Sprintf("timeline:index:%d", timelineID)
}

// Rebuild reads the committed schedule and replaces the cached snapshot
func (s *TimelineIndexService) Rebuild(ctx context.Context, timelineID int) (*Snapshot, error) {
	tl, err := s.reader.FindTimeline(ctx, timelineID)
	if err != nil {
		return nil, err
	}
	member := strconv.Itoa(timelineID)
	if tl == nil {
		if err := s.rdb.Del(ctx, snapshotKey(timelineID)).Err(); err != nil {
			return nil, err
		}
		if err := s.rdb.ZRem(ctx, endDateIndexKey, member).Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %d", ErrTimelineGone, timelineID)
	}

	ms, err := s.reader.ListMilestonesAfter(ctx, timelineID, 0)
	if err != nil {
		return nil, err
	}

	snap := buildSnapshot(tl, ms, s.now().UTC())
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey(timelineID), raw, s.ttl)
		if tl.EndDate != nil {
			pipe.ZAdd(ctx, endDateIndexKey, redis.Z{Score: float64(model.Day(*tl.EndDate).Unix()), Member: member})
		} else {
			pipe.ZRem(ctx, endDateIndexKey, member)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}

	s.logger.Debug("Timeline index rebuilt",
		zap.Int("timeline_id", timelineID),
		zap.Int("milestones", len(snap.Milestones)),
	)
	return snap, nil
}

// Get returns the cached snapshot, or nil when none is cached
func (s *TimelineIndexService) Get(ctx context.Context, timelineID int) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, snapshotKey(timelineID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// EndingBetween lists timeline ids whose end date falls within [from, to]
func (s *TimelineIndexService) EndingBetween(ctx context.Context, from, to time.Time) ([]int, error) {
	members, err := s.rdb.ZRangeByScore(ctx, endDateIndexKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(model.Day(from).Unix(), 10),
		Max: strconv.FormatInt(model.Day(to).Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildSnapshot(tl *model.Timeline, ms []*model.Milestone, now time.Time) *Snapshot {
	snap := &Snapshot{
		TimelineID: tl.ID,
		Milestones: make([]ScheduleEntry, 0, len(ms)),
		RebuiltAt:  now,
	}
	if tl.EndDate != nil {
		d := tl.EndDate.Format(model.DateLayout)
		snap.EndDate = &d
	}

	for _, m := range ms {
		entry := ScheduleEntry{
			ID:        m.ID,
			Order:     m.Order,
			Name:      m.Name,
			StartDate: m.StartDate.Format(model.DateLayout),
			EndDate:   m.EndDate.Format(model.DateLayout),
			Status:    m.Status,
			Hidden:    m.Hidden,
			UpdatedAt: m.UpdatedAt,
		}
		if m.CompletionDate != nil {
			d := m.CompletionDate.Format(model.DateLayout)
			entry.CompletionDate = &d
		}
		if snap.ActiveMilestoneID == nil && m.Status == model.StatusActive && !m.Hidden {
			id := m.ID
			snap.ActiveMilestoneID = &id
		}
		snap.Milestones = append(snap.Milestones, entry)
	}
	return snap
}
