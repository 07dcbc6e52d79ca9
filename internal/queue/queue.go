// Package queue carries token batches between the dispatcher and the batch workers.
// Delivery is at-least-once: a message is acknowledged only after it was handled or
// handed over to a retry copy.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rug-sentinel/internal/domain"
	"rug-sentinel/internal/observability"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrEmpty is returned by Receive when no message arrived within the transport's poll window.
var ErrEmpty = errors.New("queue empty")

// Message is one raw payload plus its acknowledgement hook.
type Message struct {
	Body []byte
	ack  func(ctx context.Context) error
}

func NewMessage(body []byte, ack func(ctx context.Context) error) *Message {
	return &Message{Body: body, ack: ack}
}

// Ack removes the message from the transport. Unacknowledged messages are redelivered.
func (m *Message) Ack(ctx context.Context) error {
	if m.ack == nil {
		return nil
	}
	return m.ack(ctx)
}

type Transport interface {
	Publish(ctx context.Context, body []byte) error
	// Receive blocks for at most one poll window and returns ErrEmpty when nothing arrived.
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

// Recoverer is implemented by transports that park received messages until they are
// acknowledged. Recover moves every parked message back onto the queue and must only be
// called while no consumer of the queue is running.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Delivery is a decoded batch awaiting acknowledgement.
type Delivery struct {
	Batch domain.TokenBatch
	msg   *Message
}

func (d *Delivery) Ack(ctx context.Context) error {
	return d.msg.Ack(ctx)
}

type Queue struct {
	transport Transport
	tracer    trace.Tracer
	logger    logrus.FieldLogger
	metrics   *observability.Metrics
	now       func() time.Time
}

func New(tracer trace.Tracer, logger logrus.FieldLogger, metrics *observability.Metrics, transport Transport) *Queue {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Queue{
		transport: transport,
		tracer:    tracer,
		logger:    logger,
		metrics:   observability.Discard(metrics),
		now:       time.Now,
	}
}

// Enqueue publishes batch, assigning an id and enqueue time when missing.
func (q *Queue) Enqueue(ctx context.Context, batch domain.TokenBatch) error {
	ctx, span := q.tracer.Start(ctx, "queue.enqueue", trace.WithAttributes(
		attribute.Int("mints", len(batch.Mints)),
		attribute.Int("attempt", batch.Attempt),
	))
	defer span.End()

	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.EnqueuedAt.IsZero() {
		batch.EnqueuedAt = q.now().UTC()
	}
	span.SetAttributes(attribute.String("batch_id", batch.ID))

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", batch.ID, err)
	}
	if err := q.transport.Publish(ctx, body); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publish batch %s: %w", batch.ID, err)
	}
	q.metrics.BatchesEnqueued.Inc()
	return nil
}

// Receive returns the next decodable batch. Undecodable payloads are acknowledged and dropped.
func (q *Queue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		msg, err := q.transport.Receive(ctx)
		if err != nil {
			return nil, err
		}
		var batch domain.TokenBatch
		if err := json.Unmarshal(msg.Body, &batch); err != nil {
			q.logger.WithError(err).WithField("payload", truncate(msg.Body, 256)).Error("dropping malformed batch")
			q.metrics.BatchesDropped.Inc()
			if ackErr := msg.Ack(ctx); ackErr != nil {
				return nil, ackErr
			}
			continue
		}
		return &Delivery{Batch: batch, msg: msg}, nil
	}
}

// Recover requeues messages that were received but never acknowledged. Transports that
// redeliver on their own report zero.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	r, ok := q.transport.(Recoverer)
	if !ok {
		return 0, nil
	}
	ctx, span := q.tracer.Start(ctx, "queue.recover")
	defer span.End()

	n, err := r.Recover(ctx)
	span.SetAttributes(attribute.Int("requeued", n))
	if err != nil {
		span.RecordError(err)
		return n, err
	}
	return n, nil
}

func (q *Queue) Close() error {
	return q.transport.Close()
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
