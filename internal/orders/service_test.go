package orders

import (
	"context"
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
	"github.com/xelth-com/orderledger/internal/notify"
	"github.com/xelth-com/orderledger/internal/outbox"
	"github.com/xelth-com/orderledger/internal/reqctx"
	"github.com/xelth-com/orderledger/internal/services/delivery"
	"github.com/xelth-com/orderledger/internal/syncevent"
	"gorm.io/gorm"
)

var orderDate = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	events := syncevent.NewLog(db.DB, logger)
	notifier := notify.NewService(notify.NewRegistry(logger), 0, logger)
	prop := ledger.NewPropagator(ledger.NewWindowMatcher(0, false), events, logger)
	mat := inventory.NewMaterializer(catalog.New(nil, logger), notifier, events, nil, 0, logger)
	dispatcher := outbox.NewDispatcher(db.DB, outbox.NewProcessor(db.DB, prop, mat, logger), config.OutboxConfig{MaxAttempts: 3}, logger)

	s := NewService(db.DB, events, delivery.NewService(), notifier, dispatcher, logger)
	return s, db.DB
}

func seed(t *testing.T, db *gorm.DB, id uint, status models.ConfirmationStatus) {
	t.Helper()
	o := models.LedgerOrder{
		ID:                 id,
		InventoryRef:       77,
		SupplierRef:        3,
		Quantity:           10,
		UnitType:           "pcs",
		UnitPrice:          decimal.RequireFromString("3.00"),
		OrderDate:          orderDate,
		ConfirmationStatus: status,
	}
	require.NoError(t, db.Create(&models.Order{LedgerOrder: o}).Error)
	admin := o
	admin.ID = id + 9000
	require.NoError(t, db.Create(&models.AdminOrder{LedgerOrder: admin}).Error)
}

func supplierCtx(id uint) context.Context {
	return reqctx.WithPrincipal(context.Background(), reqctx.Principal{ID: id, Role: RoleSupplier})
}

func TestConfirm_CreatesDeliveryNotificationAndPropagates(t *testing.T) {
	s, db := newService(t)
	seed(t, db, 501, models.StatusPending)

	res, err := s.Confirm(supplierCtx(3), ConfirmRequest{OrderID: 501, Status: "confirmed"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.StatusConfirmed, res.Status)
	require.NotNil(t, res.DeliveryID)

	var d models.Delivery
	require.NoError(t, db.First(&d, *res.DeliveryID).Error)
	assert.Equal(t, models.DeliveryStatusPending, d.Status)
	assert.Equal(t, uint(501), d.OrderID)

	var n models.Notification
	require.NoError(t, db.Where("type = ?", models.NotificationOrderConfirmed).Take(&n).Error)
	assert.Equal(t, models.RecipientManagement, n.RecipientType)

	rec, err := ledger.Load(context.Background(), db, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, rec.ConfirmationStatus)
	require.NotNil(t, rec.ConfirmationDate)

	counterpart, err := ledger.Load(context.Background(), db, models.LedgerAdmin, 9501)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, counterpart.ConfirmationStatus)
	require.NotNil(t, counterpart.ConfirmationDate)
	assert.True(t, counterpart.ConfirmationDate.Equal(*rec.ConfirmationDate))

	var ev models.SyncEvent
	require.NoError(t, db.Where("event_type = ?", models.SyncEventOrderConfirmation).Take(&ev).Error)
	assert.Equal(t, "supplier:3", ev.Actor)
}

func TestConfirm_CancelSendsCancelledNotification(t *testing.T) {
	s, db := newService(t)
	seed(t, db, 501, models.StatusPending)

	res, err := s.Confirm(supplierCtx(3), ConfirmRequest{OrderID: 501, Status: "cancelled"})
	require.NoError(t, err)
	assert.Nil(t, res.DeliveryID)

	var n int64
	require.NoError(t, db.Model(&models.Notification{}).Where("type = ?", models.NotificationOrderCancelled).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestConfirm_Validation(t *testing.T) {
	s, _ := newService(t)

	_, err := s.Confirm(supplierCtx(3), ConfirmRequest{OrderID: 501, Status: "delivered"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = s.Confirm(supplierCtx(3), ConfirmRequest{Status: "confirmed"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestConfirm_UnknownOrder(t *testing.T) {
	s, db := newService(t)

	_, err := s.Confirm(supplierCtx(3), ConfirmRequest{OrderID: 404, Status: "confirmed"})
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)

	var ev models.SyncEvent
	require.NoError(t, db.Where("order_ref = ?", 404).Take(&ev).Error)
	assert.False(t, ev.Success)
}

func TestConfirm_OtherSupplierIsForbidden(t *testing.T) {
	s, db := newService(t)
	seed(t, db, 501, models.StatusPending)

	_, err := s.Confirm(supplierCtx(4), ConfirmRequest{OrderID: 501, Status: "confirmed"})
	assert.ErrorIs(t, err, ErrForbidden)

	rec, err := ledger.Load(context.Background(), db, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, rec.ConfirmationStatus)

	var deliveries int64
	require.NoError(t, db.Model(&models.Delivery{}).Count(&deliveries).Error)
	assert.Zero(t, deliveries)
}

func TestConfirm_CannotReopenCancelledOrder(t *testing.T) {
	s, db := newService(t)
	seed(t, db, 501, models.StatusCancelled)

	ctx := reqctx.WithPrincipal(context.Background(), reqctx.Principal{ID: 1, Role: RoleManager})
	_, err := s.Confirm(ctx, ConfirmRequest{OrderID: 501, Status: "confirmed"})
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	var notes int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&notes).Error)
	assert.Zero(t, notes)
}
