package milestone

import (
	"context"

	"timeline-service/internal/model"
)

// Reader serves lookups. Absent rows come back as (nil, nil).
type Reader interface {
	FindTimeline(ctx context.Context, timelineID int) (*model.Timeline, error)
	// ListMilestonesAfter returns milestones with order > after, ascending by order
	ListMilestonesAfter(ctx context.Context, timelineID, after int) ([]*model.Milestone, error)
}

// Tx is the persistence surface available inside one unit of work
type Tx interface {
	Reader
	FindMilestone(ctx context.Context, timelineID, milestoneID int) (*model.Milestone, error)
	CountAtOrder(ctx context.Context, timelineID, order, excludeID int) (int, error)
	// ShiftOrders adds delta to the order of every milestone in the timeline
	// other than excludeID whose order lies in [from, to], in one statement.
	ShiftOrders(ctx context.Context, timelineID, excludeID, from, to, delta int) (int64, error)
	SaveMilestone(ctx context.Context, m *model.Milestone) error
	SaveTimeline(ctx context.Context, t *model.Timeline) error
}

// Store runs fn as one all-or-nothing unit holding the timeline's lock.
// Any error from fn rolls everything back; a nil return commits.
type Store interface {
	Reader
	WithinTimeline(ctx context.Context, timelineID int, fn func(ctx context.Context, tx Tx) error) error
}

// Notifier delivers change events; retry and durability are its concern
type Notifier interface {
	Publish(ctx context.Context, event string, payload any, correlationID string) error
}
