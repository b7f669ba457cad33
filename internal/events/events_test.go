package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBusDeliversEverything(t *testing.T) {
	var (
		mu  sync.Mutex
		got []int64
	)
	bus := NewLocalBus(context.Background(), 3, 4, func(_ context.Context, ev SubmissionEvent) error {
		mu.Lock()
		got = append(got, ev.SubmissionID)
		mu.Unlock()
		return nil
	})
	for i := int64(1); i <= 20; i++ {
		require.NoError(t, bus.PublishSubmitted(context.Background(), SubmissionEvent{SubmissionID: i}))
	}
	require.NoError(t, bus.Close())
	assert.Len(t, got, 20)

	assert.ErrorIs(t, bus.PublishSubmitted(context.Background(), SubmissionEvent{SubmissionID: 21}), ErrClosed)
	assert.NoError(t, bus.Close(), "closing twice is harmless")
}

func TestLocalBusKeepsGoingAfterErrors(t *testing.T) {
	var calls atomic.Int32
	bus := NewLocalBus(context.Background(), 1, 0, func(context.Context, SubmissionEvent) error {
		calls.Add(1)
		return errors.New("boom")
	})
	ctx := context.Background()
	require.NoError(t, bus.PublishSubmitted(ctx, SubmissionEvent{SubmissionID: 1}))
	require.NoError(t, bus.PublishSubmitted(ctx, SubmissionEvent{SubmissionID: 2}))
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(2), calls.Load())
}

func TestLocalBusPublishHonoursContext(t *testing.T) {
	block := make(chan struct{})
	bus := NewLocalBus(context.Background(), 1, 0, func(context.Context, SubmissionEvent) error {
		<-block
		return nil
	})
	require.NoError(t, bus.PublishSubmitted(context.Background(), SubmissionEvent{SubmissionID: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.PublishSubmitted(ctx, SubmissionEvent{SubmissionID: 2}), context.Canceled)

	close(block)
	require.NoError(t, bus.Close())
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}

func (f *fakeAck) Reject(_ uint64, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}

func delivery(t *testing.T, body any, redelivered bool) (amqp.Delivery, *fakeAck) {
	t.Helper()
	raw, ok := body.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	ack := &fakeAck{}
	return amqp.Delivery{Acknowledger: ack, Body: raw, Redelivered: redelivered}, ack
}

func TestHandleDelivery(t *testing.T) {
	ok := func(context.Context, SubmissionEvent) error { return nil }
	fail := func(context.Context, SubmissionEvent) error { return errors.New("boom") }
	ev := SubmissionEvent{SubmissionID: 9, PublicID: "p"}

	t.Run("success acks", func(t *testing.T) {
		d, ack := delivery(t, ev, false)
		handleDelivery(context.Background(), 1, d, ok)
		assert.True(t, ack.acked)
	})

	t.Run("malformed is dropped", func(t *testing.T) {
		d, ack := delivery(t, []byte("{"), false)
		handleDelivery(context.Background(), 1, d, ok)
		assert.True(t, ack.nacked)
		assert.False(t, ack.requeued)
	})

	t.Run("first failure is requeued", func(t *testing.T) {
		d, ack := delivery(t, ev, false)
		handleDelivery(context.Background(), 1, d, fail)
		assert.True(t, ack.nacked)
		assert.True(t, ack.requeued)
	})

	t.Run("redelivered failure is dropped", func(t *testing.T) {
		d, ack := delivery(t, ev, true)
		handleDelivery(context.Background(), 1, d, fail)
		assert.True(t, ack.nacked)
		assert.False(t, ack.requeued)
	})
}
