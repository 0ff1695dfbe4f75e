package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "timeline-service/contracts/mq"
	"timeline-service/internal/service/worker"
	"timeline-service/pkg/util"
)

const (
	maxRetries  = 5
	handlerName = "timeline_index"
)

// IndexRebuilder refreshes the cached schedule of one timeline
type IndexRebuilder interface {
	Rebuild(ctx context.Context, timelineID int) (*worker.Snapshot, error)
}

type MilestoneUpdatedHandler struct {
	index        IndexRebuilder
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	logger       *zap.Logger
}

func NewMilestoneUpdatedHandler(
	index IndexRebuilder,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	logger *zap.Logger,
) *MilestoneUpdatedHandler {
	return &MilestoneUpdatedHandler{
		index:        index,
		deduper:      deduper,
		retryCounter: retryCounter,
		logger:       logger,
	}
}

// HandleMilestoneUpdated rebuilds the timeline index for a milestone.updated event.
// Returned errors are classified by the consumer: retryable ones are requeued,
// everything else goes to the DLQ.
func (h *MilestoneUpdatedHandler) HandleMilestoneUpdated(ctx context.Context, raw json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in HandleMilestoneUpdated", zap.Any("panic", r))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	var p mqcontracts.MilestoneUpdatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal milestone updated payload (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}
	if p.EventID == "" || p.TimelineID <= 0 {
		h.logger.Error("Milestone updated payload missing identity (sending to DLQ)",
			zap.String("event_id", p.EventID),
			zap.Int("timeline_id", p.TimelineID),
		)
		return fmt.Errorf("invalid payload: event_id=%q timeline_id=%d", p.EventID, p.TimelineID)
	}

	if !h.deduper.AcquireOnce(ctx, handlerName, p.EventID) {
		return nil
	}

	h.logger.Info("Rebuilding timeline index",
		zap.String("event_id", p.EventID),
		zap.String("trace_id", p.TraceID),
		zap.Int("timeline_id", p.TimelineID),
		zap.Int("milestone_id", p.MilestoneID),
	)

	retryKey := util.FormatRetryKey(handlerName, p.EventID)

	if _, rebuildErr := h.index.Rebuild(ctx, p.TimelineID); rebuildErr != nil {
		if errors.Is(rebuildErr, worker.ErrTimelineGone) {
			h.logger.Warn("Timeline deleted, dropped from index",
				zap.Int("timeline_id", p.TimelineID),
				zap.String("event_id", p.EventID),
			)
			h.resetRetries(ctx, retryKey)
			return nil
		}

		isRetryable, errType := util.IsRetryableError(rebuildErr)
		if !isRetryable {
			h.logger.Error("Failed to rebuild timeline index (non-retryable)",
				zap.String("event_id", p.EventID),
				zap.String("error_type", errType),
				zap.Error(rebuildErr),
			)
			h.resetRetries(ctx, retryKey)
			return rebuildErr
		}

		// let the redelivery through the dedup gate
		h.deduper.Release(ctx, handlerName, p.EventID)

		retryCount, cerr := h.retryCounter.IncrementAndGet(ctx, retryKey)
		if cerr != nil {
			h.logger.Warn("Failed to get retry count, continuing anyway",
				zap.String("event_id", p.EventID),
				zap.Error(cerr),
			)
			retryCount = 1
		}

		h.logger.Error("Failed to rebuild timeline index",
			zap.String("event_id", p.EventID),
			zap.String("error_type", errType),
			zap.Int64("retry_count", retryCount),
			zap.Error(rebuildErr),
		)

		if !util.ShouldRetry(retryCount, maxRetries, true) {
			h.logger.Warn("Max retries exceeded, sending to DLQ",
				zap.String("event_id", p.EventID),
				zap.Int64("retry_count", retryCount),
			)
			h.resetRetries(ctx, retryKey)
			// %v drops the retryable chain so the consumer dead-letters it
			return fmt.Errorf("max retries exceeded for event %s: %v", p.EventID, rebuildErr)
		}
		return rebuildErr
	}

	h.resetRetries(ctx, retryKey)
	h.logger.Info("Timeline index rebuilt",
		zap.String("event_id", p.EventID),
		zap.Int("timeline_id", p.TimelineID),
	)
	return nil
}

func (h *MilestoneUpdatedHandler) resetRetries(ctx context.Context, key string) {
	if err := h.retryCounter.Reset(ctx, key); err != nil {
		h.logger.Warn("Failed to reset retry count", zap.String("retry_key", key), zap.Error(err))
	}
}
