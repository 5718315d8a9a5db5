package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/models"
)

// TopicSyncEvents carries every SyncEvent as it is written
const TopicSyncEvents = "sync-events"

// NotificationTopic is the topic for in-app notifications of one recipient
func NotificationTopic(recipientKey string) string {
	return "notifications:" + recipientKey
}

type subscription struct {
	client *Client
	topic  string
}

// Hub maintains the set of active clients and fans messages out per topic
type Hub struct {
	// Registered clients and the topics each listens to
	clients map[*Client]map[string]bool

	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	logger *logrus.Logger
}

// NewHub creates a new Hub instance
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		logger:     logger,
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = map[string]bool{}
			for _, t := range c.initialTopics {
				h.clients[c][t] = true
			}
			h.mu.Unlock()
			h.logger.WithFields(logrus.Fields{"client": c.ID, "topics": c.initialTopics}).Debug("websocket client connected")

		case s := <-h.subscribe:
			h.mu.Lock()
			if topics, ok := h.clients[s.client]; ok {
				topics[s.topic] = true
			}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.WithField("client", c.ID).Debug("websocket client disconnected")
			}
			h.mu.Unlock()
		}
	}
}

// Publish sends message to every client subscribed to topic and returns how
// many clients accepted it. Slow clients with a full buffer are skipped.
func (h *Hub) Publish(topic string, message interface{}) int {
	jsonMsg, err := json.Marshal(envelope{Topic: topic, Data: message})
	if err != nil {
		h.logger.WithError(err).WithField("topic", topic).Error("marshal websocket message")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c, topics := range h.clients {
		if !topics[topic] {
			continue
		}
		select {
		case c.send <- jsonMsg:
			sent++
		default:
			// Buffer full or client dead
		}
	}
	return sent
}

// PublishSyncEvent feeds the live audit stream
func (h *Hub) PublishSyncEvent(ev models.SyncEvent) {
	h.Publish(TopicSyncEvents, ev)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type envelope struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}
