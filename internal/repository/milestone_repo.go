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

type MilestoneRepository struct {
	db     db.Querier
	logger *zap.Logger
}

// NewMilestoneRepository binds the repository to q, either the pool or a live transaction
func NewMilestoneRepository(q db.Querier, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     q,
		logger: logger,
	}
}

const milestoneColumns = `
        id, timeline_id, name, description, type, sort_order, duration,
        start_date, end_date, completion_date, status, hidden, details,
        planned_text, active_text, completed_text, blocked_text,
        updated_by, created_at, updated_at
`

// FindMilestone returns (nil, nil) when the milestone is absent or soft-deleted
func (r *MilestoneRepository) FindMilestone(ctx context.Context, timelineID, milestoneID int) (*model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE id = $1 AND timeline_id = $2 AND deleted_at IS NULL
    `

	m, err := scanMilestone(r.db.QueryRow(ctx, query, milestoneID, timelineID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find milestone",
			zap.Int("timeline_id", timelineID),
			zap.Int("milestone_id", milestoneID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("find milestone: %w", err)
	}
	return m, nil
}

func (r *MilestoneRepository) ListMilestonesAfter(ctx context.Context, timelineID, after int) ([]*model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE timeline_id = $1 AND sort_order > $2 AND deleted_at IS NULL
        ORDER BY sort_order ASC
    `

	rows, err := r.db.Query(ctx, query, timelineID, after)
	if err != nil {
		r.logger.Error("Failed to list milestones", zap.Int("timeline_id", timelineID), zap.Error(err))
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []*model.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			r.logger.Error("Failed to scan milestone", zap.Error(err))
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		milestones = append(milestones, m)
	}

	return milestones, rows.Err()
}

func (r *MilestoneRepository) CountAtOrder(ctx context.Context, timelineID, order, excludeID int) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM milestones
        WHERE timeline_id = $1 AND sort_order = $2 AND id <> $3 AND deleted_at IS NULL
    `

	var n int
	if err := r.db.QueryRow(ctx, query, timelineID, order, excludeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count milestones at order: %w", err)
	}
	return n, nil
}

// ShiftOrders moves every other milestone in [from, to] by delta in one statement.
// The unique (timeline_id, sort_order) constraint is deferred to commit.
func (r *MilestoneRepository) ShiftOrders(ctx context.Context, timelineID, excludeID, from, to, delta int) (int64, error) {
	r.logger.Debug("Shifting milestone orders",
		zap.Int("timeline_id", timelineID),
		zap.Int("exclude_id", excludeID),
		zap.Int("from", from),
		zap.Int("to", to),
		zap.Int("delta", delta),
	)

	query := `
        UPDATE milestones
        SET sort_order = sort_order + $5, updated_at = NOW()
        WHERE timeline_id = $1
          AND id <> $2
          AND sort_order BETWEEN $3 AND $4
          AND deleted_at IS NULL
    `

	tag, err := r.db.Exec(ctx, query, timelineID, excludeID, from, to, delta)
	if err != nil {
		r.logger.Error("Failed to shift milestone orders", zap.Error(err))
		return 0, fmt.Errorf("shift milestone orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MilestoneRepository) SaveMilestone(ctx context.Context, m *model.Milestone) error {
	details := m.Details
	if details == nil {
		details = map[string]interface{}{}
	}

	query := `
        UPDATE milestones
        SET name = $3, description = $4, type = $5, sort_order = $6, duration = $7,
            start_date = $8, end_date = $9, completion_date = $10, status = $11,
            hidden = $12, details = $13, planned_text = $14, active_text = $15,
            completed_text = $16, blocked_text = $17, updated_by = $18, updated_at = NOW()
        WHERE id = $1 AND timeline_id = $2 AND deleted_at IS NULL
        RETURNING updated_at
    `

	err := r.db.QueryRow(ctx, query,
		m.ID,
		m.TimelineID,
		m.Name,
		m.Description,
		m.Type,
		m.Order,
		m.Duration,
		m.StartDate,
		m.EndDate,
		m.CompletionDate,
		m.Status,
		m.Hidden,
		details,
		m.PlannedText,
		m.ActiveText,
		m.CompletedText,
		m.BlockedText,
		m.UpdatedBy,
	).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("save milestone %d: no such row", m.ID)
	}
	if err != nil {
		r.logger.Error("Failed to save milestone", zap.Int("milestone_id", m.ID), zap.Error(err))
		return fmt.Errorf("save milestone: %w", err)
	}
	return nil
}

func scanMilestone(row pgx.Row) (*model.Milestone, error) {
	var m model.Milestone
	err := row.Scan(
		&m.ID,
		&m.TimelineID,
		&m.Name,
		&m.Description,
		&m.Type,
		&m.Order,
		&m.Duration,
		&m.StartDate,
		&m.EndDate,
		&m.CompletionDate,
		&m.Status,
		&m.Hidden,
		&m.Details,
		&m.PlannedText,
		&m.ActiveText,
		&m.CompletedText,
		&m.BlockedText,
		&m.UpdatedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.StartDate = model.Day(m.StartDate)
	m.EndDate = model.Day(m.EndDate)
	if m.CompletionDate != nil {
		d := model.Day(*m.CompletionDate)
		m.CompletionDate = &d
	}
	return &m, nil
}
