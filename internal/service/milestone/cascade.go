package milestone

import (
	"context"

	"timeline-service/internal/model"
)

type cascadeResult struct {
	last    *model.Milestone
	changed int
}

// cascade re-chains every milestone after edited so each starts the day after
// its predecessor finished. When the edit moved the completion date, the first
// visible downstream milestone is activated.
func cascade(ctx context.Context, tx Tx, edited *model.Milestone, completionDateChanged bool, actorID int) (cascadeResult, error) {
	res := cascadeResult{last: edited}

	downstream, err := tx.ListMilestonesAfter(ctx, edited.TimelineID, edited.Order)
	if err != nil {
		return res, persistenceErr("list downstream milestones", err)
	}

	cursor := model.AddDays(edited.CursorDate(), 1)
	activated := false

	for _, m := range downstream {
		dirty := false

		if !model.Day(m.StartDate).Equal(cursor) {
			m.StartDate = cursor
			dirty = true
		}
		if end := model.EndDateFor(cursor, m.Duration); !model.Day(m.EndDate).Equal(end) {
			m.EndDate = end
			dirty = true
		}
		if completionDateChanged && !activated && !m.Hidden {
			activated = true
			if m.Status != model.StatusActive {
				m.Status = model.StatusActive
				dirty = true
			}
		}

		cursor = model.AddDays(m.CursorDate(), 1)

		if dirty {
			actor := actorID
			m.UpdatedBy = &actor
			if err := tx.SaveMilestone(ctx, m); err != nil {
				return res, persistenceErr("save downstream milestone", err)
			}
			res.changed++
		}
		res.last = m
	}

	return res, nil
}
