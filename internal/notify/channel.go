// Package notify persists in-app notifications with duplicate suppression
// and fans them out to delivery channels.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/models"
)

// Channel delivers a persisted notification to its recipient.
// Email and SMS channels live outside this service.
type Channel interface {
	// Code returns the unique channel code (e.g. "log", "inapp")
	Code() string

	// Send delivers n. Failures are logged by the registry, never retried.
	Send(ctx context.Context, n models.Notification) error
}

// LogChannel writes notifications to the application log
type LogChannel struct {
	logger *logrus.Logger
}

// NewLogChannel creates a log channel
func NewLogChannel(logger *logrus.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Code implements Channel
func (c *LogChannel) Code() string { return "log" }

// Send implements Channel
func (c *LogChannel) Send(ctx context.Context, n models.Notification) error {
	c.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"recipient":       n.RecipientKey(),
		"type":            n.Type,
		"order_ref":       n.OrderRef,
	}).Info(n.Message)
	return nil
}

// Broadcaster pushes a message to listeners of a topic and reports how many got it
type Broadcaster interface {
	Publish(topic string, message interface{}) int
}

// InAppChannel pushes notifications to connected websocket listeners
type InAppChannel struct {
	hub   Broadcaster
	topic func(recipientKey string) string
}

// NewInAppChannel creates an in-app channel; topic maps a recipient key to a hub topic
func NewInAppChannel(hub Broadcaster, topic func(recipientKey string) string) *InAppChannel {
	return &InAppChannel{hub: hub, topic: topic}
}

// Code implements Channel
func (c *InAppChannel) Code() string { return "inapp" }

// Send implements Channel. Having nobody listening is not an error;
// the row stays unread until fetched.
func (c *InAppChannel) Send(ctx context.Context, n models.Notification) error {
	c.hub.Publish(c.topic(n.RecipientKey()), n)
	return nil
}
