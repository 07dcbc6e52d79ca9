package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rug-sentinel/internal/domain"
	"rug-sentinel/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

var noopTracer = trace.NewNoopTracerProvider().Tracer("test")

func newMemoryQueue(t *testing.T) (*Queue, *MemoryTransport, *observability.Metrics) {
	t.Helper()
	transport := NewMemoryTransport(16)
	transport.poll = 10 * time.Millisecond
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	return New(noopTracer, nil, metrics, transport), transport, metrics
}

func TestEnqueueAssignsIDAndRoundTrips(t *testing.T) {
	q, transport, metrics := newMemoryQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.TokenBatch{Mints: []string{"m1", "m2"}}))
	assert.Equal(t, 1, transport.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchesEnqueued))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, d.Batch.ID)
	assert.False(t, d.Batch.EnqueuedAt.IsZero())
	assert.Equal(t, []string{"m1", "m2"}, d.Batch.Mints)
	assert.Equal(t, 0, d.Batch.Attempt)
}

func TestReceiveDropsMalformedPayload(t *testing.T) {
	q, transport, metrics := newMemoryQueue(t)
	ctx := context.Background()

	require.NoError(t, transport.Publish(ctx, []byte("{not json")))
	require.NoError(t, q.Enqueue(ctx, domain.TokenBatch{ID: "b1", Mints: []string{"m1"}}))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b1", d.Batch.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchesDropped))
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 5*time.Second, RetryDelay(5*time.Second, 0))
	assert.Equal(t, 10*time.Second, RetryDelay(5*time.Second, 1))
	assert.Equal(t, 20*time.Second, RetryDelay(5*time.Second, 2))
}

type scriptedHandler struct {
	mu    sync.Mutex
	seen  []domain.TokenBatch
	fail  func(domain.TokenBatch) error
	block chan struct{}
}

func (h *scriptedHandler) ProcessBatch(ctx context.Context, batch domain.TokenBatch) (domain.BatchResult, error) {
	h.mu.Lock()
	h.seen = append(h.seen, batch)
	h.mu.Unlock()
	if h.block != nil {
		<-h.block
	}
	if h.fail != nil {
		if err := h.fail(batch); err != nil {
			return domain.BatchResult{BatchID: batch.ID}, err
		}
	}
	return domain.BatchResult{BatchID: batch.ID, Ingested: len(batch.Mints)}, nil
}

func (h *scriptedHandler) attempts() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int, len(h.seen))
	for i, b := range h.seen {
		out[i] = b.Attempt
	}
	return out
}

func TestConsumerRetriesThenDrops(t *testing.T) {
	q, transport, metrics := newMemoryQueue(t)
	handler := &scriptedHandler{fail: func(domain.TokenBatch) error {
		return &domain.InfrastructureError{Op: "begin", Err: errors.New("connection refused")}
	}}
	consumer := NewConsumer(noopTracer, nil, metrics, q, handler, ConsumerConfig{Concurrency: 1, DrainTimeout: time.Second})
	var delays []time.Duration
	var mu sync.Mutex
	consumer.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}

	require.NoError(t, q.Enqueue(context.Background(), domain.TokenBatch{ID: "b1", Mints: []string{"m1"}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return testutil.ToFloat64(metrics.BatchesDropped) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int{0, 1, 2}, handler.attempts())
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, delays)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BatchRetries))
	assert.Equal(t, 0, transport.Len())
}

func TestConsumerDrainsInFlightBatch(t *testing.T) {
	q, _, metrics := newMemoryQueue(t)
	handler := &scriptedHandler{block: make(chan struct{})}
	consumer := NewConsumer(noopTracer, nil, metrics, q, handler, ConsumerConfig{Concurrency: 2, DrainTimeout: time.Second})

	require.NoError(t, q.Enqueue(context.Background(), domain.TokenBatch{ID: "b1", Mints: []string{"m1"}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(handler.attempts()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(handler.block)

	require.NoError(t, <-done)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchesHandled.WithLabelValues("ok")))
}

func TestConsumerDrainTimeout(t *testing.T) {
	q, _, _ := newMemoryQueue(t)
	handler := &scriptedHandler{block: make(chan struct{})}
	defer close(handler.block)
	consumer := NewConsumer(noopTracer, nil, nil, q, handler, ConsumerConfig{Concurrency: 1, DrainTimeout: 20 * time.Millisecond})

	require.NoError(t, q.Enqueue(context.Background(), domain.TokenBatch{ID: "b1", Mints: []string{"m1"}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(handler.attempts()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, ErrDrainTimeout)
}

// fakeRedis implements the list commands used by RedisTransport.
type fakeRedis struct {
	mu       sync.Mutex
	lists    map[string][]string
	pushes   int
	failPush func(n int) error
}

func newFakeRedis() *fakeRedis { return &fakeRedis{lists: make(map[string][]string)} }

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	if f.failPush != nil {
		if err := f.failPush(f.pushes); err != nil {
			return redis.NewIntResult(0, err)
		}
	}
	for _, v := range values {
		f.lists[key] = append([]string{string(v.([]byte))}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd {
	if v, ok := f.move(source, destination); ok {
		return redis.NewStringResult(v, nil)
	}
	if timeout > 0 {
		time.Sleep(timeout)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) move(source, destination string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.lists[source]
	if len(src) == 0 {
		return "", false
	}
	v := src[len(src)-1]
	f.lists[source] = src[:len(src)-1]
	f.lists[destination] = append([]string{v}, f.lists[destination]...)
	return v, true
}

func (f *fakeRedis) LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.lists[key]
	for i, v := range list {
		if v == value.(string) {
			f.lists[key] = append(list[:i:i], list[i+1:]...)
			return redis.NewIntResult(1, nil)
		}
	}
	return redis.NewIntResult(0, nil)
}

func (f *fakeRedis) RPopLPush(ctx context.Context, source, destination string) *redis.StringCmd {
	if v, ok := f.move(source, destination); ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) len(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists[key])
}

func (f *fakeRedis) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes
}

func TestRedisTransportReliableReceive(t *testing.T) {
	client := newFakeRedis()
	transport := NewRedisTransport(client, "tokenUpdates")
	ctx := context.Background()

	require.NoError(t, transport.Publish(ctx, []byte("first")))
	require.NoError(t, transport.Publish(ctx, []byte("second")))

	msg, err := transport.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(msg.Body), "FIFO order")
	assert.Equal(t, []string{"first"}, client.lists["queue:tokenUpdates:processing"])

	require.NoError(t, msg.Ack(ctx))
	assert.Empty(t, client.lists["queue:tokenUpdates:processing"])

	// An unacknowledged message survives a crash and is recovered.
	_, err = transport.Receive(ctx)
	require.NoError(t, err)
	moved, err := transport.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, []string{"second"}, client.lists["queue:tokenUpdates"])

	_, err = NewRedisTransport(newFakeRedis(), "empty").Receive(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

type fakeKafka struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	written   []kafka.Message
}

func (f *fakeKafka) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.messages) > 0 {
		m := f.messages[0]
		f.messages = f.messages[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeKafka) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeKafka) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeKafka) Close() error { return nil }

func TestKafkaTransportCommitsOnAck(t *testing.T) {
	fake := &fakeKafka{messages: []kafka.Message{{Offset: 7, Value: []byte("payload")}}}
	transport := NewKafkaTransportWith(fake, fake)
	transport.poll = 10 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, transport.Publish(ctx, []byte("out")))
	require.Len(t, fake.written, 1)
	assert.Equal(t, "out", string(fake.written[0].Value))

	msg, err := transport.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(msg.Body))
	assert.Empty(t, fake.committed)
	require.NoError(t, msg.Ack(ctx))
	assert.Equal(t, []int64{7}, fake.committed)

	_, err = transport.Receive(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = transport.Receive(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, transport.Close())
}

func runUntil(t *testing.T, consumer *Consumer, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestConsumerRequeuesBatchWhoseRetryPublishFailed(t *testing.T) {
	client := newFakeRedis()
	client.failPush = func(n int) error {
		if n == 2 {
			return errors.New("READONLY You can't write against a read only replica")
		}
		return nil
	}
	transport := NewRedisTransport(client, "tokenUpdates")
	transport.poll = 5 * time.Millisecond
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	q := New(noopTracer, nil, metrics, transport)

	handler := &scriptedHandler{fail: func(b domain.TokenBatch) error {
		if b.Attempt == 0 {
			return errors.New("upstream unavailable")
		}
		return nil
	}}
	consumer := NewConsumer(noopTracer, nil, metrics, q, handler, ConsumerConfig{Concurrency: 1, DrainTimeout: time.Second})
	consumer.sleep = func(context.Context, time.Duration) error { return nil }

	require.NoError(t, q.Enqueue(context.Background(), domain.TokenBatch{ID: "b1", Mints: []string{"m1"}}))

	// First run: the retry copy cannot be published, the original stays parked.
	runUntil(t, consumer, func() bool { return client.pushCount() == 2 })
	assert.Equal(t, []int{0}, handler.attempts())
	assert.Equal(t, 0, client.len("queue:tokenUpdates"))
	assert.Equal(t, 1, client.len("queue:tokenUpdates:processing"))

	// Next run picks it up again and completes it.
	runUntil(t, consumer, func() bool {
		return testutil.ToFloat64(metrics.BatchesHandled.WithLabelValues("ok")) == 1
	})
	assert.Equal(t, []int{0, 0, 1}, handler.attempts())
	assert.Equal(t, 0, client.len("queue:tokenUpdates"))
	assert.Equal(t, 0, client.len("queue:tokenUpdates:processing"))
}

func TestMemoryTransportRecoversUnacknowledged(t *testing.T) {
	q, transport, _ := newMemoryQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.TokenBatch{ID: "b1", Mints: []string{"m1"}}))
	require.NoError(t, q.Enqueue(ctx, domain.TokenBatch{ID: "b2", Mints: []string{"m2"}}))

	first, err := q.Receive(ctx)
	require.NoError(t, err)
	second, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Ack(ctx))
	assert.Equal(t, 1, transport.InFlight())

	n, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, transport.InFlight())

	again, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Batch.ID, again.Batch.ID)
}

func TestConsumerSkipsRecoveryWhileWorkersBusy(t *testing.T) {
	q, transport, _ := newMemoryQueue(t)
	consumer := NewConsumer(noopTracer, nil, nil, q, &scriptedHandler{}, ConsumerConfig{Concurrency: 1})

	require.NoError(t, transport.Publish(context.Background(), []byte(`{"id":"b1"}`)))
	_, err := transport.Receive(context.Background())
	require.NoError(t, err)

	consumer.active.Store(1)
	consumer.recoverInFlight(context.Background())
	assert.Equal(t, 1, transport.InFlight(), "a straggler may still own the message")

	consumer.active.Store(0)
	consumer.recoverInFlight(context.Background())
	assert.Equal(t, 0, transport.InFlight())
	assert.Equal(t, 1, transport.Len())
}
