package models

import (
	"time"
)

// Delivery status constants
const (
	DeliveryStatusPending   = "pending"   // Created on order confirmation
	DeliveryStatusShipped   = "shipped"   // Handed to carrier
	DeliveryStatusDelivered = "delivered" // Delivered to warehouse
	DeliveryStatusCancelled = "cancelled" // Order cancelled
)

// Delivery tracks the physical shipment belonging to a supplier order
type Delivery struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	OrderID        uint       `gorm:"not null;index" json:"order_id"`
	Status         string     `gorm:"type:varchar(20);index;default:pending" json:"status"`
	TrackingNumber string     `gorm:"index" json:"tracking_number,omitempty"`
	SourceSystem   string     `gorm:"type:varchar(50)" json:"source_system,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name
func (Delivery) TableName() string { return "deliveries" }

// DeliveryStatusFor maps an order status onto the delivery record status.
// The second return is false when the order status does not touch the delivery.
func DeliveryStatusFor(s ConfirmationStatus) (string, bool) {
	switch s {
	case StatusDelivered, StatusCompleted:
		return DeliveryStatusDelivered, true
	case StatusCancelled:
		return DeliveryStatusCancelled, true
	}
	return "", false
}
