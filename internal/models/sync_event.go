package models

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// SyncEvent types
const (
	SyncEventStatusPropagation = "status_propagation"
	SyncEventWebhookStatus     = "webhook_status"
	SyncEventOrderConfirmation = "order_confirmation"
	SyncEventMaterialization   = "inventory_materialization"
)

// Systems named in SyncEvent.SourceSystem / TargetSystem besides the two ledgers
const (
	SystemInventory = "inventory"
)

// SyncEvent is the append-only audit record of one synchronization attempt.
// Nothing in this codebase updates or deletes rows of this table.
type SyncEvent struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	EventType     string         `gorm:"type:varchar(50);not null;index" json:"event_type"`
	SourceSystem  string         `gorm:"type:varchar(50);not null" json:"source_system"`
	TargetSystem  string         `gorm:"type:varchar(50)" json:"target_system"`
	OrderRef      uint           `gorm:"index" json:"order_ref"`
	StatusBefore  string         `gorm:"type:varchar(20)" json:"status_before"`
	StatusAfter   string         `gorm:"type:varchar(20)" json:"status_after"`
	Success       bool           `gorm:"not null;index" json:"success"`
	Message       string         `gorm:"type:text" json:"message"`
	Actor         string         `gorm:"type:varchar(100)" json:"actor,omitempty"`
	CorrelationID string         `gorm:"type:varchar(64);index" json:"correlation_id,omitempty"`
	Details       datatypes.JSON `json:"details,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

// TableName specifies the table name
func (SyncEvent) TableName() string {
	return "sync_events"
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
