package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventMessage(t *testing.T, eventType string) kafka.Message {
	t.Helper()
	event, err := NewEvent(eventType, "agg-1", "order", "order-service", nil)
	require.NoError(t, err)
	b, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: "ecommerce.order.created", Value: b, Offset: 7}
}

func newTestConsumer(r MessageReader, h Handler, dlq DeadLetterer) *Consumer {
	opts := []ConsumerOption{WithReader(r)}
	if dlq != nil {
		opts = append(opts, WithDLQ(dlq))
	}
	return NewConsumer(ConsumerConfig{
		Topic:       "ecommerce.order.created",
		GroupID:     "cart-service",
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	}, h, testLogger(), opts...)
}

func TestConsumer_Process_Success(t *testing.T) {
	var calls atomic.Int32
	dlq := &recordingDLQ{}
	c := newTestConsumer(newFakeReader(), func(ctx context.Context, e *Event) error {
		calls.Add(1)
		assert.Equal(t, "order.created", e.EventType)
		return nil
	}, dlq)

	c.process(context.Background(), eventMessage(t, "order.created"))

	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, dlq.msgs)
}

func TestConsumer_Process_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	dlq := &recordingDLQ{}
	c := newTestConsumer(newFakeReader(), func(ctx context.Context, e *Event) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, dlq)

	c.process(context.Background(), eventMessage(t, "order.created"))

	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, dlq.msgs)
}

func TestConsumer_Process_ExhaustedGoesToDLQ(t *testing.T) {
	var calls atomic.Int32
	dlq := &recordingDLQ{}
	boom := errors.New("cart store down")
	c := newTestConsumer(newFakeReader(), func(ctx context.Context, e *Event) error {
		calls.Add(1)
		return boom
	}, dlq)

	msg := eventMessage(t, "order.created")
	c.process(context.Background(), msg)

	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, msg.Offset, dlq.msgs[0].Offset)
	assert.ErrorIs(t, dlq.causes[0], boom)
}

func TestConsumer_Process_UndecodableGoesToDLQ(t *testing.T) {
	dlq := &recordingDLQ{}
	c := newTestConsumer(newFakeReader(), func(ctx context.Context, e *Event) error {
		t.Fatal("handler must not run for undecodable messages")
		return nil
	}, dlq)

	c.process(context.Background(), kafka.Message{Topic: "ecommerce.order.created", Value: []byte("garbage")})

	assert.Len(t, dlq.msgs, 1)
}

func TestConsumer_Start_CommitsEveryMessageAndStops(t *testing.T) {
	reader := newFakeReader(
		eventMessage(t, "order.created"),
		kafka.Message{Topic: "ecommerce.order.created", Value: []byte("garbage")},
	)
	c := newTestConsumer(reader, func(ctx context.Context, e *Event) error { return nil }, &recordingDLQ{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return reader.commits() == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.True(t, reader.closed)
	assert.NoError(t, c.Close())
}
