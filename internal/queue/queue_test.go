package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HabitQuest/internal/cache"
	"HabitQuest/internal/model"
	"HabitQuest/pkg/errors"
	"HabitQuest/storage/mq"
)

type fakeApplier struct {
	calls   int
	partial int
	err     error
}

func (f *fakeApplier) ApplyProgressEvent(_ context.Context, _ *model.QuestProgressEvent) (int, error) {
	f.calls++
	if f.err != nil {
		return f.partial, f.err
	}
	return 1, nil
}

func newMarker(t *testing.T) *cache.MessageMarker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewMessageMarker(client)
}

func eventBody(t *testing.T, evt model.QuestProgressEvent) []byte {
	t.Helper()
	b, err := json.Marshal(evt)
	require.NoError(t, err)
	return b
}

func TestHandleDropsDuplicateDeliveries(t *testing.T) {
	applier := &fakeApplier{}
	c := NewProgressConsumer(applier, newMarker(t))
	ctx := context.Background()

	body := eventBody(t, model.QuestProgressEvent{MessageID: "qp_42", UserID: "u", Trigger: model.TriggerFocusTime, Increment: 5})

	require.NoError(t, c.Handle(ctx, "", body))
	require.NoError(t, c.Handle(ctx, "", body))
	assert.Equal(t, 1, applier.calls)
}

func TestHandleFallsBackToDeliveryMessageID(t *testing.T) {
	applier := &fakeApplier{}
	c := NewProgressConsumer(applier, newMarker(t))
	ctx := context.Background()

	body := eventBody(t, model.QuestProgressEvent{UserID: "u", Trigger: model.TriggerFocusTime, Increment: 5})
	require.NoError(t, c.Handle(ctx, "amqp-1", body))
	require.NoError(t, c.Handle(ctx, "amqp-1", body))
	require.NoError(t, c.Handle(ctx, "amqp-2", body))
	assert.Equal(t, 2, applier.calls)
}

func TestHandleUnmarksTransientFailures(t *testing.T) {
	applier := &fakeApplier{err: stderrors.New("db down")}
	c := NewProgressConsumer(applier, newMarker(t))
	ctx := context.Background()

	body := eventBody(t, model.QuestProgressEvent{MessageID: "qp_7", UserID: "u", Trigger: model.TriggerHydrateGoal, Increment: 100})
	assert.Error(t, c.Handle(ctx, "", body))

	applier.err = nil
	require.NoError(t, c.Handle(ctx, "", body))
	assert.Equal(t, 2, applier.calls, "redelivery is processed again")
}

func TestHandleKeepsMarkerAfterPartialWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	applier := &fakeApplier{partial: 1, err: stderrors.New("connection reset")}
	c := NewProgressConsumer(applier, cache.NewMessageMarker(client))
	ctx := context.Background()

	body := eventBody(t, model.QuestProgressEvent{MessageID: "qp_9", UserID: "u", Trigger: model.TriggerFocusTime, Increment: 25})
	assert.Error(t, c.Handle(ctx, "", body))

	// 超过处理中标记的 TTL 后依旧不会重放
	mr.FastForward(10 * time.Minute)
	applier.err = nil
	require.NoError(t, c.Handle(ctx, "", body))
	assert.Equal(t, 1, applier.calls, "an event that already wrote progress is never replayed")
}

func TestHandleKeepsMarkerForRejectedEvents(t *testing.T) {
	applier := &fakeApplier{err: errors.InvalidTrigger}
	c := NewProgressConsumer(applier, newMarker(t))
	ctx := context.Background()

	body := eventBody(t, model.QuestProgressEvent{MessageID: "qp_8", UserID: "u", Trigger: "nap", Increment: 1})
	assert.ErrorIs(t, c.Handle(ctx, "", body), errors.InvalidTrigger)
	require.NoError(t, c.Handle(ctx, "", body))
	assert.Equal(t, 1, applier.calls)
}

func TestHandleRejectsMalformedBody(t *testing.T) {
	applier := &fakeApplier{}
	c := NewProgressConsumer(applier, nil)

	assert.Error(t, c.Handle(context.Background(), "x", []byte("{not json")))
	assert.Zero(t, applier.calls)
}

func TestPublishQuestProgress(t *testing.T) {
	var (
		gotExchange, gotKey, gotID string
		gotBody                    interface{}
	)
	p := &QuestEventProducer{publish: func(_ context.Context, exchange, routingKey, messageID string, body interface{}) error {
		gotExchange, gotKey, gotID, gotBody = exchange, routingKey, messageID, body
		return nil
	}}

	evt := &model.QuestProgressEvent{UserID: "u", Trigger: model.TriggerLogMeal, Increment: 1}
	require.NoError(t, p.PublishQuestProgress(context.Background(), evt))

	assert.Equal(t, mq.QuestEventsExchange, gotExchange)
	assert.Equal(t, mq.QuestProgressRoutingKey, gotKey)
	assert.NotEmpty(t, evt.MessageID)
	assert.Equal(t, evt.MessageID, gotID)
	assert.Same(t, evt, gotBody)

	p.publish = func(context.Context, string, string, string, interface{}) error { return mq.ErrNotConnected }
	assert.ErrorIs(t, p.PublishQuestProgress(context.Background(), evt), mq.ErrNotConnected)
}
