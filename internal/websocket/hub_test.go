package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/orderledger/internal/models"
)

func newTestHub(t *testing.T) *Hub {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_PublishOnlyReachesSubscribers(t *testing.T) {
	hub := newTestHub(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, TopicSyncEvents)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, hub.Publish(NotificationTopic("management:0"), "ignored"))

	hub.PublishSyncEvent(models.SyncEvent{ID: 7, EventType: models.SyncEventWebhookStatus, OrderRef: 501, Success: true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Topic string           `json:"topic"`
		Data  models.SyncEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, TopicSyncEvents, got.Topic)
	assert.Equal(t, uint(501), got.Data.OrderRef)
}

func TestHub_SubscribeMessage(t *testing.T) {
	hub := newTestHub(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	defer srv.Close()

	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Private topics cannot be joined after connect
	private := NotificationTopic("management:0")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "SUBSCRIBE", "topic": private, "msgId": "m0"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "SUBSCRIBE", "topic": TopicSyncEvents, "msgId": "m1"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack map[string]string
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "ACK", ack["type"])
	assert.Equal(t, "m1", ack["msgId"])

	assert.Eventually(t, func() bool {
		return hub.Publish(TopicSyncEvents, map[string]string{"message": "hello"}) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Publish(private, "secret"))
}
