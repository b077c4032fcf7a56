package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "fern.public.documents", Offset: offset, Value: []byte(value)}
}

func runConsumer(t *testing.T, reader *fakeReader, maxRetries int, handler MessageHandler, wantCommits int) {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	consumer := newConsumer(reader, ConsumerConfig{Topic: "fern.public.documents", MaxRetries: maxRetries, RetryBackoff: time.Millisecond}, logger, handler)

	require.NoError(t, consumer.Start(context.Background()))
	require.Eventually(t, func() bool { return len(reader.commits()) == wantCommits }, time.Second, 5*time.Millisecond)
	assert.True(t, consumer.Health())

	require.NoError(t, consumer.Stop())
	assert.False(t, consumer.Health())
	assert.True(t, reader.closed)
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		message(1, `{"_id":"order-1","_type":"order","status":"paid"}`),
		message(2, `null`),
	}}

	var mu sync.Mutex
	var seen []string
	runConsumer(t, reader, 0, func(_ context.Context, msg *IncomingMessage) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, msg.GetDocumentID())
		return nil
	}, 2)

	assert.Equal(t, []int64{1, 2}, reader.commits())
	assert.Equal(t, []string{"order-1", ""}, seen)
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{message(7, `{"_id":"order-1","_type":"order"}`)}}

	calls := 0
	runConsumer(t, reader, 2, func(context.Context, *IncomingMessage) error {
		calls++
		if calls == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}, 1)

	assert.Equal(t, 2, calls)
}

func TestConsumer_DropsAfterRetries(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		message(3, `{"_id":"order-1","_type":"order"}`),
		message(4, `{"_id":"order-2","_type":"order"}`),
	}}

	calls := 0
	runConsumer(t, reader, 1, func(context.Context, *IncomingMessage) error {
		calls++
		return errors.New("store unavailable")
	}, 2)

	assert.Equal(t, 4, calls)
	assert.Equal(t, []int64{3, 4}, reader.commits())
}

func TestConsumer_CommitsUnparseable(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{message(9, `{not json`)}}

	called := false
	runConsumer(t, reader, 0, func(context.Context, *IncomingMessage) error {
		called = true
		return nil
	}, 1)

	assert.False(t, called)
}
