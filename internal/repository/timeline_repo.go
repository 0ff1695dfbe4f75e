package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"timeline-service/internal/model"
	"timeline-service/pkg/db"
)

type TimelineRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewTimelineRepository(q db.Querier, logger *zap.Logger) *TimelineRepository {
	return &TimelineRepository{
		db:     q,
		logger: logger,
	}
}

// FindTimeline returns (nil, nil) when the timeline does not exist
func (r *TimelineRepository) FindTimeline(ctx context.Context, timelineID int) (*model.Timeline, error) {
	query := `
        SELECT id, name, end_date, updated_by, created_at, updated_at
        FROM timelines
        WHERE id = $1
    `

	var t model.Timeline
	err := r.db.QueryRow(ctx, query, timelineID).Scan(
		&t.ID,
		&t.Name,
		&t.EndDate,
		&t.UpdatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find timeline", zap.Int("timeline_id", timelineID), zap.Error(err))
		return nil, fmt.Errorf("find timeline: %w", err)
	}
	if t.EndDate != nil {
		d := model.Day(*t.EndDate)
		t.EndDate = &d
	}
	return &t, nil
}

func (r *TimelineRepository) SaveTimeline(ctx context.Context, t *model.Timeline) error {
	query := `
        UPDATE timelines
        SET name = $2, end_date = $3, updated_by = $4, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `

	err := r.db.QueryRow(ctx, query, t.ID, t.Name, t.EndDate, t.UpdatedBy).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("save timeline %d: no such row", t.ID)
	}
	if err != nil {
		r.logger.Error("Failed to save timeline", zap.Int("timeline_id", t.ID), zap.Error(err))
		return fmt.Errorf("save timeline: %w", err)
	}
	return nil
}

// lockTimeline takes the row lock that serialises edits within one timeline.
// A missing timeline locks nothing; the lookups inside the unit of work report it.
func (r *TimelineRepository) lockTimeline(ctx context.Context, timelineID int) error {
	if _, err := r.db.Exec(ctx, `SELECT id FROM timelines WHERE id = $1 FOR UPDATE`, timelineID); err != nil {
		return fmt.Errorf("lock timeline: %w", err)
	}
	return nil
}
