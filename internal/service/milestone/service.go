package milestone

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	contractsmq "timeline-service/contracts/mq"
	"timeline-service/internal/model"
	"timeline-service/pkg/logger"
	"timeline-service/pkg/metrics"
	"timeline-service/pkg/otel"
	"timeline-service/pkg/trace"
)

// UpdateCommand is one edit of one milestone by one user
type UpdateCommand struct {
	TimelineID  int
	MilestoneID int
	ActorID     int
	Patch       Patch
}

type Service struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store Store, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the clock used for "today"
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// UpdateMilestone applies cmd and every consequence of it (order shift,
// downstream date cascade, timeline end date) atomically, then announces the
// edit with a single milestone.updated event.
func (s *Service) UpdateMilestone(ctx context.Context, cmd UpdateCommand) (*model.Milestone, error) {
	started := time.Now()

	if trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, trace.GenerateTraceID())
	}
	ctx, span := otel.StartSpan(ctx, "milestone.update")
	defer span.End()
	span.SetAttributes(
		attribute.Int("timeline.id", cmd.TimelineID),
		attribute.Int("milestone.id", cmd.MilestoneID),
	)

	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int("timeline_id", cmd.TimelineID),
		zap.Int("milestone_id", cmd.MilestoneID),
		zap.Int("actor_id", cmd.ActorID),
	)

	if err := cmd.Patch.Validate(); err != nil {
		s.fail(span, log, err, started)
		return nil, err
	}

	today := model.Day(s.now())

	var (
		original, updated *model.Milestone
		shifted           int64
		cascaded          int
		timelineSynced    bool
	)

	err := s.store.WithinTimeline(ctx, cmd.TimelineID, func(ctx context.Context, tx Tx) error {
		stored, err := tx.FindMilestone(ctx, cmd.TimelineID, cmd.MilestoneID)
		if err != nil {
			return persistenceErr("find milestone", err)
		}
		if stored == nil {
			return &NotFoundError{Entity: "milestone", ID: cmd.MilestoneID, Scope: cmd.TimelineID}
		}

		if err := checkCompletionDate(stored, cmd.Patch); err != nil {
			return err
		}

		next, changes := mergePatch(stored, cmd.Patch, today, cmd.ActorID)
		if err := tx.SaveMilestone(ctx, next); err != nil {
			return persistenceErr("save milestone", err)
		}

		if changes.order {
			if shifted, err = reindex(ctx, tx, stored.Order, next); err != nil {
				return err
			}
		}

		if changes.cascades() {
			res, err := cascade(ctx, tx, next, changes.completionDate, cmd.ActorID)
			if err != nil {
				return err
			}
			cascaded = res.changed
			if timelineSynced, err = syncTimeline(ctx, tx, cmd.TimelineID, res.last, cmd.ActorID); err != nil {
				return err
			}
		}

		original, updated = stored, next
		return nil
	})
	if err != nil {
		err = classify(err)
		s.fail(span, log, err, started)
		return nil, err
	}

	metrics.RecordMilestoneUpdate("ok", time.Since(started))
	metrics.RecordCascadeRows(cascaded)
	span.SetAttributes(
		attribute.Int64("milestone.orders_shifted", shifted),
		attribute.Int("milestone.cascade_rows", cascaded),
	)
	log.Info("Milestone updated",
		zap.Int64("orders_shifted", shifted),
		zap.Int("cascade_rows", cascaded),
		zap.Bool("timeline_synced", timelineSynced),
	)

	// the edit is committed; a caller hanging up must not lose the event
	s.announce(context.WithoutCancel(ctx), log, cmd, original, updated)
	return updated, nil
}

// GetTimeline returns the timeline or NotFoundError
func (s *Service) GetTimeline(ctx context.Context, timelineID int) (*model.Timeline, error) {
	tl, err := s.store.FindTimeline(ctx, timelineID)
	if err != nil {
		return nil, persistenceErr("find timeline", err)
	}
	if tl == nil {
		return nil, &NotFoundError{Entity: "timeline", ID: timelineID}
	}
	return tl, nil
}

// ListMilestones returns a timeline's milestones in order
func (s *Service) ListMilestones(ctx context.Context, timelineID int) ([]*model.Milestone, error) {
	if _, err := s.GetTimeline(ctx, timelineID); err != nil {
		return nil, err
	}
	ms, err := s.store.ListMilestonesAfter(ctx, timelineID, 0)
	if err != nil {
		return nil, persistenceErr("list milestones", err)
	}
	return ms, nil
}

// announce publishes after commit. Failure is reported, never returned.
func (s *Service) announce(ctx context.Context, log *zap.Logger, cmd UpdateCommand, original, updated *model.Milestone) {
	traceID := trace.FromContext(ctx)
	payload := contractsmq.MilestoneUpdatedPayload{
		EventID:     uuid.NewString(),
		TraceID:     traceID,
		TimelineID:  cmd.TimelineID,
		MilestoneID: cmd.MilestoneID,
		ActorID:     cmd.ActorID,
		OccurredAt:  s.now().UTC(),
		Original:    original,
		Updated:     updated,
	}

	if err := s.notifier.Publish(ctx, contractsmq.EventMilestoneUpdated, payload, traceID); err != nil {
		nerr := &NotificationError{Event: contractsmq.EventMilestoneUpdated, Err: err}
		metrics.IncrementEventPublish(contractsmq.EventMilestoneUpdated, "failed")
		log.Error("Milestone committed but event not published",
			zap.String("event_id", payload.EventID),
			zap.Error(nerr),
		)
	}
}

func (s *Service) fail(span oteltrace.Span, log *zap.Logger, err error, started time.Time) {
	outcome := outcomeOf(err)
	metrics.RecordMilestoneUpdate(outcome, time.Since(started))
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	if outcome == "internal" {
		log.Error("Milestone update failed", zap.Error(err))
		return
	}
	log.Warn("Milestone update rejected", zap.String("outcome", outcome), zap.Error(err))
}

// classify leaves domain errors alone and files everything else, commit
// failures included, under PersistenceError
func classify(err error) error {
	var (
		nf *NotFoundError
		ve *ValidationError
		pe *PersistenceError
	)
	if errors.As(err, &nf) || errors.As(err, &ve) || errors.As(err, &pe) {
		return err
	}
	return persistenceErr("commit", err)
}

func outcomeOf(err error) string {
	var (
		nf *NotFoundError
		ve *ValidationError
	)
	switch {
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &ve):
		return "invalid"
	default:
		return "internal"
	}
}
