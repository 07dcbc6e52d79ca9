package ingest

import (
	"context"
	"fmt"
	"time"

	"rug-sentinel/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TrackedAssetSource lists the mints that should be polled this cycle.
type TrackedAssetSource interface {
	TrackedAssets(ctx context.Context) ([]string, error)
}

// Dispatcher partitions the tracked mints into fixed-size batches and enqueues them.
type Dispatcher struct {
	queue     BatchEnqueuer
	source    TrackedAssetSource
	batchSize int
	tracer    trace.Tracer
	logger    logrus.FieldLogger
	newID     func() string
	now       func() time.Time
}

func NewDispatcher(tracer trace.Tracer, logger logrus.FieldLogger, queue BatchEnqueuer, source TrackedAssetSource, batchSize int) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if batchSize <= 0 {
		batchSize = domain.DefaultBatchSize
	}
	return &Dispatcher{
		queue:     queue,
		source:    source,
		batchSize: batchSize,
		tracer:    tracer,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Dispatch enqueues mints in contiguous batches and returns how many batches were queued.
// Duplicates are dropped, first occurrence wins.
func (d *Dispatcher) Dispatch(ctx context.Context, mints []string) (int, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatch", trace.WithAttributes(attribute.Int("mints", len(mints))))
	defer span.End()

	unique := dedupe(mints)
	queued := 0
	for _, chunk := range Partition(unique, d.batchSize) {
		batch := domain.TokenBatch{
			ID:         d.newID(),
			Mints:      chunk,
			EnqueuedAt: d.now().UTC(),
		}
		if err := d.queue.Enqueue(ctx, batch); err != nil {
			span.RecordError(err)
			return queued, &domain.InfrastructureError{Op: "enqueue batch", Err: err}
		}
		queued++
	}

	d.logger.WithFields(logrus.Fields{"mints": len(unique), "batches": queued}).Info("dispatched token batches")
	return queued, nil
}

// DispatchTracked dispatches everything the configured source currently tracks.
func (d *Dispatcher) DispatchTracked(ctx context.Context) (int, error) {
	if d.source == nil {
		return 0, fmt.Errorf("no tracked asset source configured")
	}
	mints, err := d.source.TrackedAssets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tracked assets: %w", err)
	}
	return d.Dispatch(ctx, mints)
}

// Partition splits items into contiguous chunks of at most size.
func Partition(items []string, size int) [][]string {
	if size <= 0 {
		size = domain.DefaultBatchSize
	}
	var chunks [][]string
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, append([]string(nil), items[start:end]...))
	}
	return chunks
}

func dedupe(mints []string) []string {
	seen := make(map[string]struct{}, len(mints))
	out := make([]string, 0, len(mints))
	for _, m := range mints {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
