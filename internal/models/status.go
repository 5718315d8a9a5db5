package models

import (
	"errors"
	"fmt"
)

// ConfirmationStatus is the lifecycle state shared by both order ledgers
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "pending"   // Awaiting supplier action
	StatusConfirmed ConfirmationStatus = "confirmed" // Accepted by supplier
	StatusCancelled ConfirmationStatus = "cancelled" // Terminal
	StatusDelivered ConfirmationStatus = "delivered" // Goods handed over
	StatusCompleted ConfirmationStatus = "completed" // Counted into inventory
)

// ErrIllegalTransition is returned when a status change would move backwards
var ErrIllegalTransition = errors.New("illegal status transition")

var allowedTransitions = map[ConfirmationStatus][]ConfirmationStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusDelivered, StatusCancelled},
	StatusDelivered: {StatusCompleted},
}

// ParseConfirmationStatus validates a raw status string
func ParseConfirmationStatus(raw string) (ConfirmationStatus, error) {
	s := ConfirmationStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the known statuses
func (s ConfirmationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusDelivered, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
// Staying in the same status is always allowed and is treated as a no-op.
func (s ConfirmationStatus) CanTransition(next ConfirmationStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition wraps CanTransition into an error carrying both ends
func (s ConfirmationStatus) CheckTransition(next ConfirmationStatus) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, next)
	}
	return nil
}
