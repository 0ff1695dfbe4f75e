package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"timeline-service/internal/model"
	"timeline-service/internal/service/milestone"
	"timeline-service/pkg/db"
)

const (
	uniqueViolation    = "23505"
	exclusionViolation = "23P01"
)

var (
	_ milestone.Store = (*Store)(nil)
	_ milestone.Tx    = unitOfWork{}
)

// Store is the Postgres unit-of-work behind the milestone service
type Store struct {
	pool       db.TxBeginner
	milestones *MilestoneRepository
	timelines  *TimelineRepository
	logger     *zap.Logger
}

// NewStore takes the pool both as the transaction source and for plain reads
func NewStore(pool interface {
	db.TxBeginner
	db.Querier
}, logger *zap.Logger) *Store {
	return &Store{
		pool:       pool,
		milestones: NewMilestoneRepository(pool, logger),
		timelines:  NewTimelineRepository(pool, logger),
		logger:     logger,
	}
}

// unitOfWork exposes both repositories bound to one transaction
type unitOfWork struct {
	*MilestoneRepository
	*TimelineRepository
}

func (s *Store) FindTimeline(ctx context.Context, timelineID int) (*model.Timeline, error) {
	return s.timelines.FindTimeline(ctx, timelineID)
}

func (s *Store) ListMilestonesAfter(ctx context.Context, timelineID, after int) ([]*model.Milestone, error) {
	return s.milestones.ListMilestonesAfter(ctx, timelineID, after)
}

// WithinTimeline runs fn in a transaction that holds the timeline row lock,
// so concurrent edits of one timeline queue up while other timelines proceed.
func (s *Store) WithinTimeline(ctx context.Context, timelineID int, fn func(ctx context.Context, tx milestone.Tx) error) error {
	err := db.WithTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx pgx.Tx) error {
		uow := unitOfWork{
			MilestoneRepository: NewMilestoneRepository(tx, s.logger),
			TimelineRepository:  NewTimelineRepository(tx, s.logger),
		}
		if err := uow.lockTimeline(ctx, timelineID); err != nil {
			return err
		}
		return fn(ctx, uow)
	})
	return mapConstraintError(timelineID, err)
}

// mapConstraintError tags a deferred order uniqueness failure at commit
func mapConstraintError(timelineID int, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == uniqueViolation || pgErr.Code == exclusionViolation) {
		return fmt.Errorf("%w: %w", &milestone.ConflictError{TimelineID: timelineID}, err)
	}
	return err
}
