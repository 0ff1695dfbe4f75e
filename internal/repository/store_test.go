package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"timeline-service/internal/service/milestone"
)

type fakeTx struct {
	pgx.Tx
	execs      []string
	execErr    error
	commitErr  error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, strings.Join(strings.Fields(sql), " "))
	return pgconn.NewCommandTag("SELECT 1"), f.execErr
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

type fakePool struct {
	tx *fakeTx
	// satisfies db.Querier for the read path; unused in these tests
	fakeQuerier
}

func (p *fakePool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return p.tx, nil
}

type fakeQuerier struct{}

func (fakeQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("unexpected exec")
}

func (fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestStore_WithinTimelineLocksThenCommits(t *testing.T) {
	tx := &fakeTx{}
	store := NewStore(&fakePool{tx: tx}, zap.NewNop())

	called := false
	err := store.WithinTimeline(context.Background(), 42, func(ctx context.Context, utx milestone.Tx) error {
		called = true
		require.Len(t, tx.execs, 1, "lock is taken before the unit of work runs")
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "SELECT id FROM timelines WHERE id = $1 FOR UPDATE", tx.execs[0])
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestStore_WithinTimelineRollsBackOnError(t *testing.T) {
	tx := &fakeTx{}
	store := NewStore(&fakePool{tx: tx}, zap.NewNop())
	boom := &milestone.ValidationError{Field: "completion_date", Message: "too early"}

	err := store.WithinTimeline(context.Background(), 42, func(context.Context, milestone.Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestStore_LockFailureSkipsUnitOfWork(t *testing.T) {
	tx := &fakeTx{execErr: errors.New("lock timeout")}
	store := NewStore(&fakePool{tx: tx}, zap.NewNop())

	err := store.WithinTimeline(context.Background(), 42, func(context.Context, milestone.Tx) error {
		t.Fatal("unit of work must not run without the lock")
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock timeout")
	assert.True(t, tx.rolledBack)
}

func TestStore_CommitUniqueViolationIsConflict(t *testing.T) {
	tx := &fakeTx{commitErr: &pgconn.PgError{Code: uniqueViolation, ConstraintName: "milestones_timeline_order_key"}}
	store := NewStore(&fakePool{tx: tx}, zap.NewNop())

	err := store.WithinTimeline(context.Background(), 42, func(context.Context, milestone.Tx) error {
		return nil
	})

	var conflict *milestone.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 42, conflict.TimelineID)

	var pgErr *pgconn.PgError
	assert.ErrorAs(t, err, &pgErr)
}

func TestStore_CommitExclusionViolationIsConflict(t *testing.T) {
	tx := &fakeTx{commitErr: &pgconn.PgError{Code: exclusionViolation, ConstraintName: "milestones_timeline_order_key"}}
	store := NewStore(&fakePool{tx: tx}, zap.NewNop())

	err := store.WithinTimeline(context.Background(), 42, func(context.Context, milestone.Tx) error {
		return nil
	})

	var conflict *milestone.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 42, conflict.TimelineID)
}

func TestMapConstraintError_PassesOtherErrors(t *testing.T) {
	assert.NoError(t, mapConstraintError(1, nil))

	other := &pgconn.PgError{Code: "40001"}
	err := mapConstraintError(1, other)
	assert.Same(t, other, err)
}
