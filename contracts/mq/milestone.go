package mq

import (
	"time"

	"timeline-service/internal/model"
)

const EventMilestoneUpdated = "milestone.updated"

// MilestoneUpdatedPayload announces one accepted milestone edit.
// Cascade-affected milestones are folded into the same commit and never announced separately.
type MilestoneUpdatedPayload struct {
	EventID     string           `json:"event_id"`
	TraceID     string           `json:"trace_id,omitempty"`
	TimelineID  int              `json:"timeline_id"`
	MilestoneID int              `json:"milestone_id"`
	ActorID     int              `json:"actor_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Original    *model.Milestone `json:"original"`
	Updated     *model.Milestone `json:"updated"`
}

// Aggregate names the entity the event is about, for outbox bookkeeping
func (p MilestoneUpdatedPayload) Aggregate() (string, int64) {
	return "milestone", int64(p.MilestoneID)
}
