package milestone

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"timeline-service/internal/model"
)

// memStore is an in-memory Store. Writes inside WithinTimeline land on a
// private copy that replaces the committed state only when fn succeeds and
// order uniqueness holds.
type memStore struct {
	mu         sync.Mutex
	timelines  map[int]*model.Timeline
	milestones map[int]*model.Milestone

	// failSave, when set, is consulted before every milestone write
	failSave  func(m *model.Milestone) error
	failShift error
	// afterCommit runs once a unit of work is committed
	afterCommit func()

	commits   int
	rollbacks int
	saves     int
	shifts    int
	tlSaves   int
}

func newMemStore() *memStore {
	return &memStore{
		timelines:  map[int]*model.Timeline{},
		milestones: map[int]*model.Milestone{},
	}
}

func (s *memStore) putTimeline(t *model.Timeline) {
	s.timelines[t.ID] = t
}

func (s *memStore) putMilestone(m *model.Milestone) {
	s.milestones[m.ID] = m
}

func (s *memStore) milestone(id int) *model.Milestone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.milestones[id].Clone()
}

func (s *memStore) timeline(id int) model.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.timelines[id]
}

// ordered returns the committed milestones of a timeline by order
func (s *memStore) ordered(timelineID int) []*model.Milestone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listAfter(s.milestones, timelineID, 0)
}

func (s *memStore) FindTimeline(_ context.Context, timelineID int) (*model.Timeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timelines[timelineID]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (s *memStore) ListMilestonesAfter(_ context.Context, timelineID, after int) ([]*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listAfter(s.milestones, timelineID, after), nil
}

func (s *memStore) WithinTimeline(ctx context.Context, timelineID int, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:      s,
		timelines:  map[int]*model.Timeline{},
		milestones: map[int]*model.Milestone{},
	}
	for id, t := range s.timelines {
		c := *t
		tx.timelines[id] = &c
	}
	for id, m := range s.milestones {
		tx.milestones[id] = m.Clone()
	}

	if err := fn(ctx, tx); err != nil {
		s.rollbacks++
		return err
	}
	if err := checkUniqueOrders(tx.milestones); err != nil {
		s.rollbacks++
		return err
	}

	s.timelines = tx.timelines
	s.milestones = tx.milestones
	s.commits++
	if s.afterCommit != nil {
		s.afterCommit()
	}
	return nil
}

type memTx struct {
	store      *memStore
	timelines  map[int]*model.Timeline
	milestones map[int]*model.Milestone
}

func (t *memTx) FindTimeline(_ context.Context, timelineID int) (*model.Timeline, error) {
	tl, ok := t.timelines[timelineID]
	if !ok {
		return nil, nil
	}
	c := *tl
	return &c, nil
}

func (t *memTx) ListMilestonesAfter(_ context.Context, timelineID, after int) ([]*model.Milestone, error) {
	return listAfter(t.milestones, timelineID, after), nil
}

func (t *memTx) FindMilestone(_ context.Context, timelineID, milestoneID int) (*model.Milestone, error) {
	m, ok := t.milestones[milestoneID]
	if !ok || m.TimelineID != timelineID || m.DeletedAt != nil {
		return nil, nil
	}
	return m.Clone(), nil
}

func (t *memTx) CountAtOrder(_ context.Context, timelineID, order, excludeID int) (int, error) {
	n := 0
	for _, m := range t.milestones {
		if m.TimelineID == timelineID && m.Order == order && m.ID != excludeID && m.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ShiftOrders(_ context.Context, timelineID, excludeID, from, to, delta int) (int64, error) {
	if t.store.failShift != nil {
		return 0, t.store.failShift
	}
	t.store.shifts++
	var n int64
	for _, m := range t.milestones {
		if m.TimelineID == timelineID && m.ID != excludeID && m.DeletedAt == nil &&
			m.Order >= from && m.Order <= to {
			m.Order += delta
			n++
		}
	}
	return n, nil
}

func (t *memTx) SaveMilestone(_ context.Context, m *model.Milestone) error {
	if t.store.failSave != nil {
		if err := t.store.failSave(m); err != nil {
			return err
		}
	}
	if _, ok := t.milestones[m.ID]; !ok {
		return errors.New("no such milestone")
	}
	t.store.saves++
	c := m.Clone()
	c.UpdatedAt = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	m.UpdatedAt = c.UpdatedAt
	t.milestones[m.ID] = c
	return nil
}

func (t *memTx) SaveTimeline(_ context.Context, tl *model.Timeline) error {
	if _, ok := t.timelines[tl.ID]; !ok {
		return errors.New("no such timeline")
	}
	t.store.tlSaves++
	c := *tl
	t.timelines[tl.ID] = &c
	return nil
}

func listAfter(all map[int]*model.Milestone, timelineID, after int) []*model.Milestone {
	var out []*model.Milestone
	for _, m := range all {
		if m.TimelineID == timelineID && m.Order > after && m.DeletedAt == nil {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func checkUniqueOrders(all map[int]*model.Milestone) error {
	type slot struct{ timeline, order int }
	seen := map[slot]int{}
	for _, m := range all {
		if m.DeletedAt != nil {
			continue
		}
		k := slot{m.TimelineID, m.Order}
		seen[k]++
		if seen[k] > 1 {
			return &ConflictError{TimelineID: m.TimelineID, Order: m.Order, Occupants: seen[k]}
		}
	}
	return nil
}

type publishedEvent struct {
	event         string
	payload       any
	correlationID string
	ctxErr        error
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (n *fakeNotifier) Publish(ctx context.Context, event string, payload any, correlationID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, publishedEvent{event: event, payload: payload, correlationID: correlationID, ctxErr: ctx.Err()})
	return nil
}
