package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/orderledger/internal/database/dbtest"
	"github.com/xelth-com/orderledger/internal/models"
)

type recordingChannel struct {
	code string
	err  error
	mu   sync.Mutex
	got  []models.Notification
}

func (c *recordingChannel) Code() string { return c.code }

func (c *recordingChannel) Send(ctx context.Context, n models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return c.err
}

type recordingHub struct {
	topics []string
}

func (h *recordingHub) Publish(topic string, message interface{}) int {
	h.topics = append(h.topics, topic)
	return 1
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRegistry_RegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(quietLogger())
	require.NoError(t, r.Register(&recordingChannel{code: "log"}))
	assert.Error(t, r.Register(&recordingChannel{code: "log"}))
	assert.Error(t, r.Register(&recordingChannel{code: ""}))
	assert.True(t, r.Has("log"))

	_, err := r.Get("sms")
	assert.Error(t, err)
}

func TestRegistry_DispatchContinuesAfterFailure(t *testing.T) {
	r := NewRegistry(quietLogger())
	broken := &recordingChannel{code: "a-broken", err: errors.New("smtp down")}
	ok := &recordingChannel{code: "b-ok"}
	require.NoError(t, r.Register(broken))
	require.NoError(t, r.Register(ok))

	failed := r.Dispatch(context.Background(), models.Notification{ID: 1, Type: models.NotificationLowStock})
	assert.Equal(t, 1, failed)
	assert.Len(t, ok.got, 1)
}

func TestService_RecordThenDispatch(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	logger := quietLogger()

	hub := &recordingHub{}
	r := NewRegistry(logger)
	require.NoError(t, r.Register(NewLogChannel(logger)))
	require.NoError(t, r.Register(NewInAppChannel(hub, func(k string) string { return "notifications:" + k })))

	svc := NewService(r, 0, logger)
	n, err := svc.Record(ctx, db.DB, *confirmed(uintPtr(501)))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, models.NotificationStatusUnread, n.Status)

	dup, err := svc.Record(ctx, db.DB, *confirmed(uintPtr(501)))
	require.NoError(t, err)
	assert.Nil(t, dup)

	svc.Dispatch(ctx, n, dup)
	assert.Equal(t, []string{"notifications:management:0"}, hub.topics)

	unread, err := svc.Unread(ctx, db.DB, models.RecipientManagement, 0, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 1)
}
