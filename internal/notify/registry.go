package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/models"
)

// Registry manages all registered notification channels
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	logger   *logrus.Logger
}

// NewRegistry creates a new channel registry
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		channels: make(map[string]Channel),
		logger:   logger,
	}
}

// Register registers a new channel
func (r *Registry) Register(ch Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := ch.Code()
	if code == "" {
		return fmt.Errorf("channel code cannot be empty")
	}

	if _, exists := r.channels[code]; exists {
		return fmt.Errorf("channel %s is already registered", code)
	}

	r.channels[code] = ch
	return nil
}

// Get returns a channel by its code
func (r *Registry) Get(code string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, exists := r.channels[code]
	if !exists {
		return nil, fmt.Errorf("channel %s not found", code)
	}

	return ch, nil
}

// List returns all registered channels ordered by code
func (r *Registry) List() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Code() < channels[j].Code() })

	return channels
}

// Has checks if a channel is registered
func (r *Registry) Has(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.channels[code]
	return exists
}

// Dispatch sends n through every channel and returns the number of failures.
// Failures are logged and do not stop the remaining channels.
func (r *Registry) Dispatch(ctx context.Context, n models.Notification) int {
	failed := 0
	for _, ch := range r.List() {
		if err := ch.Send(ctx, n); err != nil {
			failed++
			r.logger.WithError(err).WithFields(logrus.Fields{
				"channel":         ch.Code(),
				"notification_id": n.ID,
			}).Warn("notification channel failed")
		}
	}
	return failed
}
