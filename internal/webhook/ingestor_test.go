package webhook

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/orderledger/internal/catalog"
	"github.com/xelth-com/orderledger/internal/config"
	"github.com/xelth-com/orderledger/internal/database/dbtest"
	"github.com/xelth-com/orderledger/internal/inventory"
	"github.com/xelth-com/orderledger/internal/ledger"
	"github.com/xelth-com/orderledger/internal/models"
	"github.com/xelth-com/orderledger/internal/outbox"
	"github.com/xelth-com/orderledger/internal/services/delivery"
	"github.com/xelth-com/orderledger/internal/syncevent"
	"gorm.io/gorm"
)

const secret = "hook-secret"

var confirmedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	ingestor *Ingestor
	events   *syncevent.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	events := syncevent.NewLog(db.DB, logger)
	prop := ledger.NewPropagator(ledger.NewWindowMatcher(0, false), events, logger)
	mat := inventory.NewMaterializer(catalog.New(nil, logger), nil, events, nil, 0, logger)
	dispatcher := outbox.NewDispatcher(db.DB, outbox.NewProcessor(db.DB, prop, mat, logger), config.OutboxConfig{MaxAttempts: 3}, logger)

	in := NewIngestor(db.DB, secret, events, delivery.NewService(), dispatcher, logger)
	in.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return &fixture{db: db.DB, ingestor: in, events: events}
}

func (f *fixture) order(t *testing.T, id uint, status models.ConfirmationStatus) {
	t.Helper()
	at := confirmedAt
	require.NoError(t, f.db.Create(&models.Order{LedgerOrder: models.LedgerOrder{
		ID:                 id,
		InventoryRef:       77,
		SupplierRef:        3,
		Quantity:           10,
		Variation:          strPtr("Size:L"),
		UnitType:           "pcs",
		UnitPrice:          decimal.RequireFromString("3.00"),
		OrderDate:          confirmedAt,
		ConfirmationStatus: status,
		ConfirmationDate:   &at,
	}}).Error)
}

func strPtr(s string) *string { return &s }

func body(orderID uint, status string) []byte {
	return []byte(fmt.Sprintf(`{"order_id":%d,"status":%q,"source_system":"carrier"}`, orderID, status))
}

func (f *fixture) eventCount(t *testing.T, orderID uint, success bool) int64 {
	t.Helper()
	n, err := f.events.Count(context.Background(), syncevent.Filter{OrderRef: orderID, EventType: models.SyncEventWebhookStatus, Success: &success})
	require.NoError(t, err)
	return n
}

func TestIngest_TamperedBodyChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.order(t, 501, models.StatusConfirmed)

	signed := body(501, "delivered")
	sig := Sign(secret, signed)
	tampered := body(501, "cancelled")

	_, err := f.ingestor.Ingest(context.Background(), sig, tampered)
	assert.ErrorIs(t, err, ErrBadSignature)

	rec, err := ledger.Load(context.Background(), f.db, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, rec.ConfirmationStatus)

	var n int64
	require.NoError(t, f.db.Model(&models.SyncEvent{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestIngest_DeliveredRedeliveryIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, 501, models.StatusConfirmed)

	b := body(501, "delivered")
	res, err := f.ingestor.Ingest(ctx, Sign(secret, b), b)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.StatusConfirmed, res.StatusBefore)
	assert.NotZero(t, res.DeliveryID)

	again, err := f.ingestor.Ingest(ctx, "sha256="+Sign(secret, b), b)
	require.NoError(t, err)
	assert.False(t, again.Changed)

	rec, err := ledger.Load(ctx, f.db, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, rec.ConfirmationStatus)
	require.NotNil(t, rec.ConfirmationDate)
	assert.True(t, rec.ConfirmationDate.Equal(confirmedAt), "confirmation date is set-if-null")

	assert.Equal(t, int64(2), f.eventCount(t, 501, true))

	var d models.Delivery
	require.NoError(t, f.db.Where("order_id = ?", 501).Take(&d).Error)
	assert.Equal(t, models.DeliveryStatusDelivered, d.Status)
}

func TestIngest_UnknownOrderRecordsFailedEvent(t *testing.T) {
	f := newFixture(t)

	b := body(404, "delivered")
	_, err := f.ingestor.Ingest(context.Background(), Sign(secret, b), b)
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.Equal(t, int64(1), f.eventCount(t, 404, false))
}

func TestIngest_IllegalTransitionRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, 501, models.StatusCompleted)

	b := body(501, "cancelled")
	_, err := f.ingestor.Ingest(ctx, Sign(secret, b), b)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	rec, err := ledger.Load(ctx, f.db, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.ConfirmationStatus)
	assert.Equal(t, int64(1), f.eventCount(t, 501, false))

	var tasks int64
	require.NoError(t, f.db.Model(&models.ReconciliationTask{}).Count(&tasks).Error)
	assert.Zero(t, tasks)
}

func TestIngest_MalformedPayload(t *testing.T) {
	f := newFixture(t)

	for _, b := range [][]byte{
		[]byte(`not json`),
		[]byte(`{"order_id":501,"source_system":"carrier"}`),
		[]byte(`{"order_id":501,"status":"shipped","source_system":"carrier"}`),
		[]byte(`{"status":"delivered","source_system":"carrier"}`),
	} {
		_, err := f.ingestor.Ingest(context.Background(), Sign(secret, b), b)
		assert.ErrorIs(t, err, ErrMalformedPayload, string(b))
	}
}

func TestIngest_CompletedMaterializesInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, 501, models.StatusDelivered)

	b := body(501, "completed")
	_, err := f.ingestor.Ingest(ctx, Sign(secret, b), b)
	require.NoError(t, err)

	var row models.InventoryVariation
	require.NoError(t, f.db.Where("inventory_item_id = ? AND label = ?", 77, "Size:L").Take(&row).Error)
	assert.Equal(t, 10, row.Quantity)

	// No admin counterpart: propagation is recorded as a miss, the status change stands
	failed := false
	n, err := f.events.Count(ctx, syncevent.Filter{OrderRef: 501, EventType: models.SyncEventStatusPropagation, Success: &failed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var pending int64
	require.NoError(t, f.db.Model(&models.ReconciliationTask{}).Where("status <> ?", models.TaskStatusSucceeded).Count(&pending).Error)
	assert.Zero(t, pending)
}
