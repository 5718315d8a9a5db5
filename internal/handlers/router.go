package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/buildinfo"
	"github.com/xelth-com/orderledger/internal/config"
	"github.com/xelth-com/orderledger/internal/database"
	"github.com/xelth-com/orderledger/internal/ledger"
	"github.com/xelth-com/orderledger/internal/middleware"
	"github.com/xelth-com/orderledger/internal/models"
	"github.com/xelth-com/orderledger/internal/notify"
	"github.com/xelth-com/orderledger/internal/orders"
	"github.com/xelth-com/orderledger/internal/syncevent"
	"github.com/xelth-com/orderledger/internal/webhook"
	"github.com/xelth-com/orderledger/internal/websocket"
)

// Deps are the components the HTTP layer calls into
type Deps struct {
	DB       *database.DB
	Config   *config.Config
	Logger   *logrus.Logger
	Events   *syncevent.Log
	Ingestor *webhook.Ingestor
	Orders   *orders.Service
	Notifier *notify.Service
	Matcher  ledger.MatchStrategy
	Hub      *websocket.Hub
}

// Router wraps the mux router and the service components
type Router struct {
	*mux.Router
	Deps
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(d Deps) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		Deps:   d,
	}
	r.Use(middleware.Correlation, middleware.Logging(d.Logger))

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Signed by the carrier, not by a user
	r.HandleFunc("/api/webhooks/delivery-status", r.deliveryStatusWebhook).Methods("POST")

	// Authenticated routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(d.Config.JWTSecret))
	api.HandleFunc("/orders/confirm", r.confirmOrder).Methods("POST")
	api.HandleFunc("/inventory/{id:[0-9]+}", r.getInventory).Methods("GET")
	api.HandleFunc("/reconciliation/match", r.matchOrder).Methods("GET")
	api.HandleFunc("/notifications", r.listNotifications).Methods("GET")
	NewSyncEventHandler(d.Events).RegisterRoutes(api)

	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(middleware.Auth(d.Config.JWTSecret))
	ws.HandleFunc("/sync-events", r.serveWs).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	status := "ok"
	code := http.StatusOK
	if sqlDB, err := r.DB.DB.DB(); err != nil || sqlDB.PingContext(req.Context()) != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":            status,
		"websocket_clients": r.Hub.ClientCount(),
		"commit":            buildinfo.CommitHash,
		"build_time":        buildinfo.BuildTime,
		"started_at":        buildinfo.StartTime,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, webhook.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, webhook.ErrMalformedPayload), errors.Is(err, orders.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrIllegalTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
