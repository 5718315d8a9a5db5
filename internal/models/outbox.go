package models

import (
	"time"
)

// Reconciliation task kinds
const (
	TaskPropagateStatus  = "propagate_status"
	TaskMaterializeOrder = "materialize_order"
)

// Reconciliation task statuses. Stored as strings.
const (
	TaskStatusPending    = "PENDING"
	TaskStatusProcessing = "PROCESSING"
	TaskStatusSucceeded  = "SUCCEEDED"
	TaskStatusFailed     = "FAILED"
	TaskStatusDead       = "DEAD"
)

// ReconciliationTask is an outbox row written in the same transaction as a
// primary ledger mutation. It is processed after commit and retried on failure.
type ReconciliationTask struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Kind          string     `gorm:"type:varchar(32);not null" json:"kind"`
	Ledger        Ledger     `gorm:"type:varchar(20);not null" json:"ledger"`
	OrderID       uint       `gorm:"not null;index" json:"order_id"`
	CorrelationID string     `gorm:"type:varchar(64)" json:"correlation_id"`
	Actor         string     `gorm:"type:varchar(100)" json:"actor"`
	Status        string     `gorm:"type:varchar(20);not null;default:PENDING;index:idx_task_ready" json:"status"`
	Attempts      int        `gorm:"default:0" json:"attempts"`
	LastError     *string    `gorm:"type:text" json:"last_error,omitempty"`
	NextAttemptAt *time.Time `gorm:"index:idx_task_ready" json:"next_attempt_at,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	LockedBy      *string    `gorm:"type:varchar(64)" json:"locked_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name
func (ReconciliationTask) TableName() string { return "reconciliation_tasks" }

// AllModels lists every table owned by this service, in migration order
func AllModels() []interface{} {
	return []interface{}{
		&Product{},
		&Order{},
		&AdminOrder{},
		&InventoryItem{},
		&InventoryVariation{},
		&Delivery{},
		&Notification{},
		&SyncEvent{},
		&ReconciliationTask{},
	}
}
