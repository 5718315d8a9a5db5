package models

import (
	"time"
)

// Notification statuses
const (
	NotificationStatusUnread = "unread"
	NotificationStatusRead   = "read"
)

// Notification types emitted by this service
const (
	NotificationOrderConfirmed = "order_confirmed"
	NotificationOrderCancelled = "order_cancelled"
	NotificationLowStock       = "low_stock"
)

// Recipient types
const (
	RecipientManagement = "management"
	RecipientSupplier   = "supplier"
)

// Notification is an in-app message. Rows are never updated except for Status.
// Dedup identity is (recipient_type, recipient_id, type, order_ref).
type Notification struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RecipientType string    `gorm:"type:varchar(32);not null;index:idx_notification_identity" json:"recipient_type"`
	RecipientID   uint      `gorm:"not null;index:idx_notification_identity" json:"recipient_id"`
	Type          string    `gorm:"type:varchar(64);not null;index:idx_notification_identity" json:"type"`
	Message       string    `gorm:"type:text" json:"message"`
	OrderRef      *uint     `gorm:"index:idx_notification_identity" json:"order_ref,omitempty"`
	Status        string    `gorm:"type:varchar(20);default:unread" json:"status"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Notification model
func (Notification) TableName() string {
	return "notifications"
}

// RecipientKey identifies the recipient across channels
func (n *Notification) RecipientKey() string {
	return n.RecipientType + ":" + uintString(n.RecipientID)
}
