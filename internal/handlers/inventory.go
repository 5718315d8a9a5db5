package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
)

// getInventory returns an inventory item with its variation rows
func (r *Router) getInventory(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid inventory id")
		return
	}

	var item models.InventoryItem
	err = r.DB.WithContext(req.Context()).
		Preload("Variations", func(db *gorm.DB) *gorm.DB { return db.Order("label ASC") }).
		First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "Inventory item not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, item)
}
