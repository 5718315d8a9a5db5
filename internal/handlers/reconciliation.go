package handlers

import (
	"net/http"
	"strconv"

	"github.com/xelth-com/orderledger/internal/ledger"
	"github.com/xelth-com/orderledger/internal/models"
	"github.com/xelth-com/orderledger/internal/reqctx"
	"github.com/xelth-com/orderledger/internal/websocket"
)

// matchOrder shows which counterpart the matcher would pick for an order
func (r *Router) matchOrder(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	l, err := models.ParseLedger(q.Get("ledger"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	orderID, err := strconv.ParseUint(q.Get("order_id"), 10, 64)
	if err != nil || orderID == 0 {
		respondError(w, http.StatusBadRequest, "Invalid order_id")
		return
	}

	ctx := req.Context()
	rec, err := ledger.Load(ctx, r.DB.DB, l, uint(orderID))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	match, err := r.Matcher.Match(ctx, r.DB.DB, rec, l)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"ledger":   l,
		"order_id": rec.ID,
		"match":    nil,
	}
	if match != nil {
		resp["match"] = map[string]interface{}{
			"ledger":        match.Ledger,
			"order_id":      match.ID,
			"reason":        match.Reason,
			"delta_seconds": int64(match.Delta.Seconds()),
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// listNotifications returns unread notifications for the caller
func (r *Router) listNotifications(w http.ResponseWriter, req *http.Request) {
	recipientType, recipientID := recipientOf(reqctx.PrincipalFrom(req.Context()))
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.Notifier.Unread(req.Context(), r.DB.DB, recipientType, recipientID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":         len(list),
		"notifications": list,
	})
}

// serveWs streams SyncEvents and the caller's notifications
func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	recipientType, recipientID := recipientOf(reqctx.PrincipalFrom(req.Context()))
	key := (&models.Notification{RecipientType: recipientType, RecipientID: recipientID}).RecipientKey()
	websocket.ServeWs(r.Hub, w, req, websocket.TopicSyncEvents, websocket.NotificationTopic(key))
}

// recipientOf maps a principal to its notification recipient.
// Managers and admins share the management inbox.
func recipientOf(p reqctx.Principal) (string, uint) {
	if p.Role == "supplier" {
		return models.RecipientSupplier, p.ID
	}
	return models.RecipientManagement, 0
}
