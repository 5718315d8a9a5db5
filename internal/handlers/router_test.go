package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
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
	"github.com/xelth-com/orderledger/internal/orders"
	"github.com/xelth-com/orderledger/internal/outbox"
	"github.com/xelth-com/orderledger/internal/reqctx"
	"github.com/xelth-com/orderledger/internal/services/delivery"
	"github.com/xelth-com/orderledger/internal/syncevent"
	"github.com/xelth-com/orderledger/internal/utils"
	"github.com/xelth-com/orderledger/internal/webhook"
	"github.com/xelth-com/orderledger/internal/websocket"
	"gorm.io/gorm"
)

const (
	jwtSecret  = "jwt-secret"
	hookSecret = "hook-secret"
)

func newTestRouter(t *testing.T) (*Router, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		JWTSecret: jwtSecret,
		Webhook:   config.WebhookConfig{Secret: hookSecret, SignatureHeader: "X-Webhook-Signature", MaxBodyBytes: 4096},
		Outbox:    config.OutboxConfig{MaxAttempts: 3},
	}

	hub := websocket.NewHub(logger)
	events := syncevent.NewLog(db.DB, logger)
	events.SetPublisher(hub)
	registry := notify.NewRegistry(logger)
	require.NoError(t, registry.Register(notify.NewLogChannel(logger)))
	notifier := notify.NewService(registry, 0, logger)
	matcher := ledger.NewWindowMatcher(0, false)
	prop := ledger.NewPropagator(matcher, events, logger)
	mat := inventory.NewMaterializer(catalog.New(nil, logger), notifier, events, nil, 0, logger)
	dispatcher := outbox.NewDispatcher(db.DB, outbox.NewProcessor(db.DB, prop, mat, logger), cfg.Outbox, logger)
	deliveries := delivery.NewService()

	r := NewRouter(Deps{
		DB:       db,
		Config:   cfg,
		Logger:   logger,
		Events:   events,
		Ingestor: webhook.NewIngestor(db.DB, hookSecret, events, deliveries, dispatcher, logger),
		Orders:   orders.NewService(db.DB, events, deliveries, notifier, dispatcher, logger),
		Notifier: notifier,
		Matcher:  matcher,
		Hub:      hub,
	})
	return r, db.DB
}

func seedOrder(t *testing.T, db *gorm.DB, id uint, status models.ConfirmationStatus) {
	t.Helper()
	require.NoError(t, db.Create(&models.Order{LedgerOrder: models.LedgerOrder{
		ID:                 id,
		InventoryRef:       77,
		SupplierRef:        3,
		Quantity:           10,
		UnitType:           "pcs",
		UnitPrice:          decimal.RequireFromString("1.00"),
		OrderDate:          time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		ConfirmationStatus: status,
	}}).Error)
}

func bearer(t *testing.T, p reqctx.Principal) string {
	t.Helper()
	token, err := utils.GenerateToken(p, jwtSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(r http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := do(r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["started_at"])
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestDeliveryStatusWebhook_StatusCodes(t *testing.T) {
	r, db := newTestRouter(t)
	seedOrder(t, db, 501, models.StatusConfirmed)
	seedOrder(t, db, 600, models.StatusCompleted)

	sign := func(b []byte) map[string]string {
		return map[string]string{"X-Webhook-Signature": webhook.Sign(hookSecret, b)}
	}
	payload := func(id uint, status string) []byte {
		return []byte(fmt.Sprintf(`{"order_id":%d,"status":%q,"source_system":"carrier"}`, id, status))
	}

	ok := payload(501, "delivered")
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/webhooks/delivery-status", ok, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/webhooks/delivery-status", payload(501, "cancelled"), sign(ok)).Code)

	bad := []byte(`{"order_id":501}`)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/webhooks/delivery-status", bad, sign(bad)).Code)

	missing := payload(404, "delivered")
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/webhooks/delivery-status", missing, sign(missing)).Code)

	backwards := payload(600, "cancelled")
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/webhooks/delivery-status", backwards, sign(backwards)).Code)

	rec := do(r, http.MethodPost, "/api/webhooks/delivery-status", ok, sign(ok))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ok"])

	stored, err := ledger.Load(context.Background(), db, models.LedgerSupplier, 501)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, stored.ConfirmationStatus)
}

func TestConfirmOrder(t *testing.T) {
	r, db := newTestRouter(t)
	seedOrder(t, db, 501, models.StatusPending)
	body := []byte(`{"order_id":501,"status":"confirmed"}`)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/orders/confirm", body, nil).Code)

	auth := map[string]string{"Authorization": bearer(t, reqctx.Principal{ID: 3, Role: "supplier"})}
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/orders/confirm", []byte(`{`), auth).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/orders/confirm", []byte(`{"order_id":501,"status":"completed"}`), auth).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/orders/confirm", []byte(`{"order_id":404,"status":"confirmed"}`), auth).Code)

	other := map[string]string{"Authorization": bearer(t, reqctx.Principal{ID: 4, Role: "supplier"})}
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/orders/confirm", body, other).Code)

	rec := do(r, http.MethodPost, "/api/orders/confirm", body, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(501), out["order_id"])
	assert.Equal(t, "confirmed", out["status"])
	assert.NotNil(t, out["delivery_id"])
	assert.NotEmpty(t, out["timestamp"])

	manager := map[string]string{"Authorization": bearer(t, reqctx.Principal{ID: 1, Role: "manager"})}
	rec = do(r, http.MethodGet, "/api/notifications", nil, manager)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])
}

func TestSyncEventsAndInventoryReads(t *testing.T) {
	r, db := newTestRouter(t)
	seedOrder(t, db, 501, models.StatusDelivered)
	auth := map[string]string{"Authorization": bearer(t, reqctx.Principal{ID: 1, Role: "admin"})}

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/inventory/77", nil, auth).Code)

	b := []byte(`{"order_id":501,"status":"completed","source_system":"carrier"}`)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/webhooks/delivery-status", b, map[string]string{"X-Webhook-Signature": webhook.Sign(hookSecret, b)}).Code)

	rec := do(r, http.MethodGet, "/api/inventory/77", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode(t, rec)
	assert.Equal(t, float64(10), item["quantity"])
	assert.Len(t, item["variations"], 1)

	rec = do(r, http.MethodGet, "/api/sync-events?order_ref=501&event_type=webhook_status", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/sync-events?order_ref=x", nil, auth).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/sync-events", nil, nil).Code)
}

func TestMatchOrder(t *testing.T) {
	r, db := newTestRouter(t)
	seedOrder(t, db, 501, models.StatusPending)
	require.NoError(t, db.Create(&models.AdminOrder{LedgerOrder: models.LedgerOrder{
		ID:                 9001,
		InventoryRef:       77,
		SupplierRef:        3,
		Quantity:           10,
		UnitType:           "pcs",
		UnitPrice:          decimal.RequireFromString("1.00"),
		OrderDate:          time.Date(2026, 3, 2, 10, 3, 0, 0, time.UTC),
		ConfirmationStatus: models.StatusPending,
	}}).Error)
	auth := map[string]string{"Authorization": bearer(t, reqctx.Principal{ID: 1, Role: "admin"})}

	rec := do(r, http.MethodGet, "/api/reconciliation/match?ledger=supplier&order_id=501", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	match, ok := decode(t, rec)["match"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(9001), match["order_id"])
	assert.Equal(t, float64(180), match["delta_seconds"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/reconciliation/match?ledger=other&order_id=1", nil, auth).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/reconciliation/match?ledger=admin&order_id=1", nil, auth).Code)
}
