package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rug-sentinel/internal/domain"
	"rug-sentinel/internal/observability"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultConcurrency    = 5
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 5 * time.Second
	DefaultDrainTimeout   = 5 * time.Second

	ackTimeout        = 5 * time.Second
	receiveErrorPause = time.Second
)

// ErrDrainTimeout is returned by Run when workers were still busy after the drain window.
var ErrDrainTimeout = errors.New("consumer drain timed out")

type BatchHandler interface {
	ProcessBatch(ctx context.Context, batch domain.TokenBatch) (domain.BatchResult, error)
}

type ConsumerConfig struct {
	Concurrency    int
	MaxAttempts    int
	InitialBackoff time.Duration
	DrainTimeout   time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	return c
}

// Consumer runs a fixed pool of workers, each handling one batch at a time.
type Consumer struct {
	queue   *Queue
	handler BatchHandler
	cfg     ConsumerConfig
	tracer  trace.Tracer
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error

	// active counts workers still running, including stragglers from a run that
	// outlived its drain window.
	active atomic.Int32
}

func NewConsumer(tracer trace.Tracer, logger logrus.FieldLogger, metrics *observability.Metrics, queue *Queue, handler BatchHandler, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Consumer{
		queue:   queue,
		handler: handler,
		cfg:     cfg.withDefaults(),
		tracer:  tracer,
		logger:  logger,
		metrics: observability.Discard(metrics),
		sleep:   sleepContext,
	}
}

// Run requeues batches left unacknowledged by earlier runs, consumes until ctx is done,
// then waits up to DrainTimeout for in-flight batches. Batches in flight when ctx ends
// keep running; the processor defers their unstarted mints.
func (c *Consumer) Run(ctx context.Context) error {
	c.recoverInFlight(ctx)
	c.logger.WithField("workers", c.cfg.Concurrency).Info("consumer started")

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Concurrency; i++ {
		wg.Add(1)
		c.active.Add(1)
		go func(id int) {
			defer wg.Done()
			defer c.active.Add(-1)
			c.worker(ctx, id)
		}(i + 1)
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(c.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		c.logger.Info("consumer drained")
		return nil
	case <-timer.C:
		c.logger.WithField("drain_timeout", c.cfg.DrainTimeout).Warn("consumer stopped with batches still in flight")
		return ErrDrainTimeout
	}
}

func (c *Consumer) recoverInFlight(ctx context.Context) {
	if n := c.active.Load(); n > 0 {
		c.logger.WithField("busy_workers", n).Warn("previous run still busy, skipping in-flight recovery")
		return
	}
	n, err := c.queue.Recover(ctx)
	if err != nil {
		c.logger.WithError(err).Error("failed to requeue in-flight batches")
	}
	if n > 0 {
		c.logger.WithField("batches", n).Info("requeued unacknowledged batches")
	}
}

func (c *Consumer) worker(ctx context.Context, id int) {
	log := c.logger.WithField("worker", id)
	for ctx.Err() == nil {
		d, err := c.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrEmpty) || ctx.Err() != nil {
				continue
			}
			log.WithError(err).Error("receive failed")
			_ = c.sleep(ctx, receiveErrorPause)
			continue
		}
		c.handle(ctx, log, d)
	}
}

func (c *Consumer) handle(ctx context.Context, log logrus.FieldLogger, d *Delivery) {
	batch := d.Batch
	ctx, span := c.tracer.Start(ctx, "consumer.handle", trace.WithAttributes(
		attribute.String("batch_id", batch.ID),
		attribute.Int("attempt", batch.Attempt),
	))
	defer span.End()

	log = log.WithFields(logrus.Fields{"batch_id": batch.ID, "attempt": batch.Attempt})

	_, err := c.handler.ProcessBatch(ctx, batch)
	if err == nil {
		c.metrics.BatchesHandled.WithLabelValues("ok").Inc()
		c.ack(ctx, log, d)
		return
	}
	span.RecordError(err)

	if batch.Attempt+1 >= c.cfg.MaxAttempts {
		c.metrics.BatchesHandled.WithLabelValues("dropped").Inc()
		c.metrics.BatchesDropped.Inc()
		log.WithError(err).WithField("mints", batch.Mints).Error("batch failed permanently, dropping")
		c.ack(ctx, log, d)
		return
	}

	delay := RetryDelay(c.cfg.InitialBackoff, batch.Attempt)
	log.WithError(err).WithField("retry_in", delay).Warn("batch failed, scheduling retry")
	c.metrics.BatchesHandled.WithLabelValues("retried").Inc()

	// The retry must be published even when the run budget ends during the delay.
	retryCtx := context.WithoutCancel(ctx)
	if err := c.sleep(retryCtx, delay); err != nil {
		return
	}
	next := batch
	next.Attempt++
	next.EnqueuedAt = time.Time{}
	pubCtx, cancel := context.WithTimeout(retryCtx, ackTimeout)
	defer cancel()
	if err := c.queue.Enqueue(pubCtx, next); err != nil {
		// The original stays unacknowledged; the next Run requeues it.
		log.WithError(err).Error("failed to publish retry")
		return
	}
	c.metrics.BatchRetries.Inc()
	c.ack(ctx, log, d)
}

func (c *Consumer) ack(ctx context.Context, log logrus.FieldLogger, d *Delivery) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := d.Ack(ackCtx); err != nil {
		log.WithError(err).Error("ack failed, batch may be redelivered")
	}
}

// RetryDelay is the wait before retrying a batch that failed on the given attempt:
// initial, 2*initial, 4*initial and so on.
func RetryDelay(initial time.Duration, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = initial << 10
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	}
}
