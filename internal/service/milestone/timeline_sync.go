package milestone

import (
	"context"

	"timeline-service/internal/model"
)

// syncTimeline aligns the timeline end date with its last milestone.
// It reports whether the timeline was written.
func syncTimeline(ctx context.Context, tx Tx, timelineID int, last *model.Milestone, actorID int) (bool, error) {
	tl, err := tx.FindTimeline(ctx, timelineID)
	if err != nil {
		return false, persistenceErr("find timeline", err)
	}
	if tl == nil {
		return false, &NotFoundError{Entity: "timeline", ID: timelineID}
	}

	end := model.Day(last.EndDate)
	if tl.EndDate != nil && model.Day(*tl.EndDate).Equal(end) {
		return false, nil
	}

	tl.EndDate = &end
	actor := actorID
	tl.UpdatedBy = &actor
	if err := tx.SaveTimeline(ctx, tl); err != nil {
		return false, persistenceErr("save timeline", err)
	}
	return true, nil
}
