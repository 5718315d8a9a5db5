package handlers

import (
	"errors"
	"io"
	"net/http"
)

// deliveryStatusWebhook applies a signed carrier callback
func (r *Router) deliveryStatusWebhook(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.Config.Webhook.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	result, err := r.Ingestor.Ingest(req.Context(), req.Header.Get(r.Config.Webhook.SignatureHeader), body)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"order_id":      result.OrderID,
		"status_before": result.StatusBefore,
		"status":        result.StatusAfter,
		"changed":       result.Changed,
	})
}
