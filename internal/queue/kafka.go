package queue

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaTransport publishes batches to a topic and consumes them in a consumer group.
// Ack commits the message offset.
type KafkaTransport struct {
	reader KafkaReader
	writer KafkaWriter
	poll   time.Duration
}

func NewKafkaTransport(cfg KafkaConfig) *KafkaTransport {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return NewKafkaTransportWith(reader, writer)
}

func NewKafkaTransportWith(reader KafkaReader, writer KafkaWriter) *KafkaTransport {
	return &KafkaTransport{reader: reader, writer: writer, poll: defaultPollWindow}
}

func (t *KafkaTransport) Publish(ctx context.Context, body []byte) error {
	return t.writer.WriteMessages(ctx, kafka.Message{Value: body})
}

func (t *KafkaTransport) Receive(ctx context.Context) (*Message, error) {
	pollCtx, cancel := context.WithTimeout(ctx, t.poll)
	defer cancel()

	m, err := t.reader.FetchMessage(pollCtx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrEmpty
		}
		return nil, err
	}
	return NewMessage(m.Value, func(ctx context.Context) error {
		return t.reader.CommitMessages(ctx, m)
	}), nil
}

func (t *KafkaTransport) Close() error {
	return errors.Join(t.reader.Close(), t.writer.Close())
}
