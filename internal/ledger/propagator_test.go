package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/orderledger/internal/database/dbtest"
	"github.com/xelth-com/orderledger/internal/models"
	"github.com/xelth-com/orderledger/internal/syncevent"
	"gorm.io/gorm"
)

func newPropagator(db *gorm.DB) (*Propagator, *syncevent.Log) {
	events := syncevent.NewLog(db, quietLogger())
	return NewPropagator(NewWindowMatcher(0, false), events, quietLogger()), events
}

func TestPropagate_ReplicatesStatusAndDate(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	p, events := newPropagator(db.DB)

	confirmedAt := baseTime.Add(time.Hour)
	src := ledgerOrder(501, strPtr("Size:L"), baseTime, models.StatusConfirmed)
	src.ConfirmationDate = &confirmedAt
	createOrder(t, db.DB, src)
	createAdminOrder(t, db.DB, ledgerOrder(9001, strPtr("Size:L"), baseTime.Add(time.Minute), models.StatusPending))

	res, err := p.Propagate(ctx, db.DB, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplicated, res.Outcome)
	assert.Equal(t, models.StatusPending, res.StatusBefore)

	dst, err := Load(ctx, db.DB, models.LedgerAdmin, 9001)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, dst.ConfirmationStatus)
	require.NotNil(t, dst.ConfirmationDate)
	assert.True(t, dst.ConfirmationDate.Equal(confirmedAt))

	list, err := events.List(ctx, syncevent.Filter{OrderRef: 501})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Success)
}

func TestPropagate_IdempotentEndStateButAudited(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	p, events := newPropagator(db.DB)

	createOrder(t, db.DB, ledgerOrder(501, nil, baseTime, models.StatusConfirmed))
	createAdminOrder(t, db.DB, ledgerOrder(9001, nil, baseTime, models.StatusPending))

	first, err := p.Propagate(ctx, db.DB, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplicated, first.Outcome)

	before, err := Load(ctx, db.DB, models.LedgerAdmin, 9001)
	require.NoError(t, err)

	second, err := p.Propagate(ctx, db.DB, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, second.Outcome)

	after, err := Load(ctx, db.DB, models.LedgerAdmin, 9001)
	require.NoError(t, err)
	assert.Equal(t, before.ConfirmationStatus, after.ConfirmationStatus)
	assert.Equal(t, before.ConfirmationDate, after.ConfirmationDate)

	n, err := events.Count(ctx, syncevent.Filter{OrderRef: 501})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPropagate_NoCounterpartIsRecordedNotReturned(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	p, events := newPropagator(db.DB)

	createOrder(t, db.DB, ledgerOrder(501, nil, baseTime, models.StatusConfirmed))

	res, err := p.Propagate(ctx, db.DB, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	require.NotNil(t, res.Event)
	assert.False(t, res.Event.Success)

	// Origin untouched
	src, err := Load(ctx, db.DB, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, src.ConfirmationStatus)

	failed := false
	n, err := events.Count(ctx, syncevent.Filter{OrderRef: 501, Success: &failed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPropagate_NeverMovesCounterpartBackwards(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	p, _ := newPropagator(db.DB)

	createOrder(t, db.DB, ledgerOrder(501, nil, baseTime, models.StatusConfirmed))
	createAdminOrder(t, db.DB, ledgerOrder(9001, nil, baseTime, models.StatusCompleted))

	res, err := p.Propagate(ctx, db.DB, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.False(t, res.Event.Success)

	dst, err := Load(ctx, db.DB, models.LedgerAdmin, 9001)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, dst.ConfirmationStatus)
}

func TestPropagate_UnknownOrder(t *testing.T) {
	db := dbtest.New(t)
	p, _ := newPropagator(db.DB)

	_, err := p.Propagate(context.Background(), db.DB, models.LedgerSupplier, 404)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
