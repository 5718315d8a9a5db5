package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/orderledger/internal/database/dbtest"
	"github.com/xelth-com/orderledger/internal/models"
)

func TestCreatePending_IsIdempotentPerOrder(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	s := NewService()

	first, err := s.CreatePending(ctx, db.DB, 501, "supplier")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusPending, first.Status)

	again, err := s.CreatePending(ctx, db.DB, 501, "supplier")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	list, err := s.List(ctx, db.DB, models.DeliveryStatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestApplyOrderStatus_DeliveredKeepsFirstTimestamp(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	s := NewService()

	_, err := s.CreatePending(ctx, db.DB, 501, "supplier")
	require.NoError(t, err)

	first := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rec, err := s.ApplyOrderStatus(ctx, db.DB, 501, models.StatusDelivered, "carrier", first)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, rec.Status)

	rec, err = s.ApplyOrderStatus(ctx, db.DB, 501, models.StatusDelivered, "carrier", first.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, rec.DeliveredAt)
	assert.True(t, rec.DeliveredAt.Equal(first))

	stored, err := s.Get(ctx, db.DB, rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.DeliveredAt.Equal(first))
}

func TestApplyOrderStatus_IgnoresUnrelatedStatus(t *testing.T) {
	db := dbtest.New(t)
	s := NewService()

	rec, err := s.ApplyOrderStatus(context.Background(), db.DB, 7, models.StatusConfirmed, "", time.Now())
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = s.Get(context.Background(), db.DB, 99)
	assert.ErrorIs(t, err, ErrDeliveryNotFound)
}

func TestApplyOrderStatus_WithoutPendingDelivery(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	s := NewService()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	rec, err := s.ApplyOrderStatus(ctx, db.DB, 8, models.StatusCancelled, "carrier", at)
	require.NoError(t, err)
	assert.Nil(t, rec, "cancelling without a delivery creates none")

	rec, err = s.ApplyOrderStatus(ctx, db.DB, 8, models.StatusDelivered, "carrier", at)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, uint(8), rec.OrderID)
	assert.Equal(t, models.DeliveryStatusDelivered, rec.Status)
	assert.Equal(t, "carrier", rec.SourceSystem)
	require.NotNil(t, rec.ShippedAt)
	assert.True(t, rec.ShippedAt.Equal(at))
}
