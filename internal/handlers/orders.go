package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/xelth-com/orderledger/internal/config"
	"github.com/xelth-com/orderledger/internal/orders"
)

// confirmOrder confirms or cancels a supplier order
func (r *Router) confirmOrder(w http.ResponseWriter, req *http.Request) {
	var body orders.ConfirmRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 16*1024)).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := r.Orders.Confirm(req.Context(), body)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			config.LogError(r.Logger, "handlers", "confirmOrder", "confirmation failed", body, err)
		}
		respondError(w, code, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}
