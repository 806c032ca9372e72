package mq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderCarrier(t *testing.T) {
	c := &MessageHeaderCarrier{}
	c.Set("traceparent", "00-abc-def-01")

	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent"}, c.Keys())

	c.Headers["x-retry"] = int32(2)
	assert.Equal(t, "", c.Get("x-retry"))
}

func TestHandlePassesHandlerError(t *testing.T) {
	in, err := NewInstrumentation("habitquest-test")
	require.NoError(t, err)

	boom := errors.New("boom")
	got := in.Handle(context.Background(), amqp.Delivery{MessageId: "m1", RoutingKey: "quest.progress.update"}, "quest.progress",
		func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, got, boom)

	called := false
	require.NoError(t, in.Handle(context.Background(), amqp.Delivery{}, "quest.progress", func(ctx context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}
