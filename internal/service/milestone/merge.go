package milestone

import (
	"time"

	"timeline-service/internal/model"
	"timeline-service/pkg/util"
)

// changeSet records which scheduling inputs an edit actually moved
type changeSet struct {
	order          bool
	duration       bool
	completionDate bool
	status         bool
}

func (c changeSet) cascades() bool {
	return c.completionDate || c.duration
}

// checkCompletionDate rejects a completion date before the stored start date
func checkCompletionDate(stored *model.Milestone, p Patch) error {
	if !p.CompletionDate.Set || p.CompletionDate.Value == nil {
		return nil
	}
	if model.Day(*p.CompletionDate.Value).Before(model.Day(stored.StartDate)) {
		return &ValidationError{
			Field:   "completion_date",
			Message: "must not be before start_date " + model.Day(stored.StartDate).Format(model.DateLayout),
		}
	}
	return nil
}

// mergePatch resolves the target state of the edited milestone.
// stored is not modified.
func mergePatch(stored *model.Milestone, p Patch, today time.Time, actorID int) (*model.Milestone, changeSet) {
	next := stored.Clone()
	var changes changeSet

	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Type != nil {
		next.Type = *p.Type
	}
	if p.PlannedText != nil {
		next.PlannedText = *p.PlannedText
	}
	if p.ActiveText != nil {
		next.ActiveText = *p.ActiveText
	}
	if p.CompletedText != nil {
		next.CompletedText = *p.CompletedText
	}
	if p.BlockedText != nil {
		next.BlockedText = *p.BlockedText
	}
	if p.Hidden != nil {
		next.Hidden = *p.Hidden
	}
	if p.Details != nil {
		base := next.Details
		if base == nil {
			base = map[string]interface{}{}
		}
		next.Details = util.DeepMerge(base, p.Details)
	}

	if p.Order != nil && *p.Order != stored.Order {
		next.Order = *p.Order
		changes.order = true
	}

	if p.Duration != nil && *p.Duration != stored.Duration {
		next.Duration = *p.Duration
		next.EndDate = model.EndDateFor(next.StartDate, next.Duration)
		changes.duration = true
	}

	if p.CompletionDate.Set {
		next.CompletionDate = copyDate(p.CompletionDate.Value)
	}

	if p.Status != nil && *p.Status != stored.Status {
		next.Status = *p.Status
		changes.status = true

		switch next.Status {
		case model.StatusCompleted:
			if !p.CompletionDate.Set || p.CompletionDate.Value == nil {
				d := today
				next.CompletionDate = &d
			}
		case model.StatusActive:
			next.StartDate = today
			next.EndDate = model.EndDateFor(today, next.Duration)
		}
	} else if p.CompletionDate.Set && p.CompletionDate.Value != nil &&
		!model.SameDay(stored.CompletionDate, next.CompletionDate) {
		next.Status = model.StatusCompleted
	}

	changes.completionDate = !model.SameDay(stored.CompletionDate, next.CompletionDate)

	actor := actorID
	next.UpdatedBy = &actor
	return next, changes
}

func copyDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := model.Day(*t)
	return &d
}
