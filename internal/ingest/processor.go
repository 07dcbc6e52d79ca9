package ingest

import (
	"context"
	"errors"
	"time"

	"rug-sentinel/internal/domain"
	"rug-sentinel/internal/observability"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultAssetTimeout = 30 * time.Second
	requeueTimeout      = 5 * time.Second
)

type Fetcher interface {
	FetchReport(ctx context.Context, mint string) (*domain.Report, error)
	FetchSecondary(ctx context.Context, mint string) (domain.PriceQuote, domain.Votes, domain.InsiderGraph, error)
}

type StalenessChecker interface {
	IsStale(ctx context.Context, mint string, detectedAt time.Time) (bool, error)
}

type SnapshotPersistor interface {
	Persist(ctx context.Context, mint string, ts time.Time, data *domain.UpstreamData) (*domain.MetricsSnapshot, error)
}

type AlertEvaluator interface {
	Evaluate(ctx context.Context, mint string, snapshot *domain.MetricsSnapshot) ([]domain.TriggeredAlert, error)
}

type BatchEnqueuer interface {
	Enqueue(ctx context.Context, batch domain.TokenBatch) error
}

type ProcessorDeps struct {
	Fetcher   Fetcher
	Gate      StalenessChecker
	Persistor SnapshotPersistor
	Evaluator AlertEvaluator
	// Requeue receives the unprocessed remainder of a batch when the run budget expires.
	Requeue BatchEnqueuer
}

// Processor runs gate, fetch, persist and evaluate for every mint of a batch, isolating
// per-mint failures. Only infrastructure failures abort the batch.
type Processor struct {
	deps         ProcessorDeps
	tracer       trace.Tracer
	logger       logrus.FieldLogger
	metrics      *observability.Metrics
	assetTimeout time.Duration
	now          func() time.Time
}

func NewProcessor(tracer trace.Tracer, logger logrus.FieldLogger, metrics *observability.Metrics, deps ProcessorDeps, assetTimeout time.Duration) *Processor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if assetTimeout <= 0 {
		assetTimeout = defaultAssetTimeout
	}
	return &Processor{
		deps:         deps,
		tracer:       tracer,
		logger:       logger,
		metrics:      observability.Discard(metrics),
		assetTimeout: assetTimeout,
		now:          time.Now,
	}
}

// ProcessBatch handles the batch's mints in order. Once ctx is done no further mint is
// started; the remainder is re-enqueued as a fresh batch and the call still succeeds.
func (p *Processor) ProcessBatch(ctx context.Context, batch domain.TokenBatch) (domain.BatchResult, error) {
	ctx, span := p.tracer.Start(ctx, "processor.process-batch", trace.WithAttributes(
		attribute.String("batch_id", batch.ID),
		attribute.Int("mints", len(batch.Mints)),
		attribute.Int("attempt", batch.Attempt),
	))
	defer span.End()

	log := p.logger.WithFields(logrus.Fields{"batch_id": batch.ID, "attempt": batch.Attempt})
	result := domain.BatchResult{BatchID: batch.ID}

	for i, mint := range batch.Mints {
		if ctx.Err() != nil {
			remaining := batch.Mints[i:]
			if err := p.deferRemainder(ctx, batch, remaining); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return result, err
			}
			for range remaining {
				result.Record(domain.OutcomeDeferred)
				p.metrics.AssetsProcessed.WithLabelValues(string(domain.OutcomeDeferred)).Inc()
			}
			log.WithField("deferred", len(remaining)).Warn("run budget exhausted, remainder re-enqueued")
			break
		}

		outcome, triggered, err := p.processAsset(ctx, mint)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.WithError(err).WithField("mint", mint).Error("infrastructure failure, aborting batch")
			return result, err
		}
		result.Record(outcome)
		result.Triggered += triggered
		p.metrics.AssetsProcessed.WithLabelValues(string(outcome)).Inc()
	}

	p.metrics.LastSuccessfulBatch.SetToCurrentTime()
	log.WithFields(logrus.Fields{
		"ingested":  result.Ingested,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"deferred":  result.Deferred,
		"triggered": result.Triggered,
	}).Info("batch processed")
	return result, nil
}

// processAsset returns a non-nil error only for infrastructure failures. It runs detached from
// the budget so an asset that has started always finishes.
func (p *Processor) processAsset(parent context.Context, mint string) (domain.AssetOutcome, int, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.assetTimeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "processor.process-asset", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	start := p.now()
	defer func() { p.metrics.AssetDuration.Observe(time.Since(start).Seconds()) }()

	log := p.logger.WithField("mint", mint)

	report, err := p.deps.Fetcher.FetchReport(ctx, mint)
	if err != nil {
		p.recordFetchFailure(log, err)
		return domain.OutcomeFailed, 0, nil
	}

	stale, err := p.deps.Gate.IsStale(ctx, mint, report.DetectedTime())
	if err != nil {
		if domain.IsInfrastructure(err) {
			return domain.OutcomeFailed, 0, err
		}
		log.WithError(err).Warn("freshness check failed")
		return domain.OutcomeFailed, 0, nil
	}
	if stale {
		log.WithField("detected_at", report.DetectedAt).Debug("upstream data not newer than last snapshot, skipping")
		return domain.OutcomeSkipped, 0, nil
	}

	price, votes, graph, err := p.deps.Fetcher.FetchSecondary(ctx, mint)
	if err != nil {
		p.recordFetchFailure(log, err)
		return domain.OutcomeFailed, 0, nil
	}

	ts := p.now().UTC().Truncate(time.Microsecond)
	data := &domain.UpstreamData{Report: report, Price: price, Votes: votes, Graph: graph}
	snapshot, err := p.deps.Persistor.Persist(ctx, mint, ts, data)
	if err != nil {
		if errors.Is(err, domain.ErrStaleSnapshot) {
			log.WithField("detected_at", report.DetectedAt).Debug("another worker stored this upstream cycle, skipping")
			return domain.OutcomeSkipped, 0, nil
		}
		if domain.IsInfrastructure(err) {
			return domain.OutcomeFailed, 0, err
		}
		log.WithError(err).Error("failed to persist snapshot")
		return domain.OutcomeFailed, 0, nil
	}
	p.metrics.SnapshotsPersisted.Inc()

	triggered, err := p.deps.Evaluator.Evaluate(ctx, mint, snapshot)
	if err != nil {
		if domain.IsInfrastructure(err) {
			return domain.OutcomeIngested, 0, err
		}
		log.WithError(err).Error("alert evaluation failed")
	}

	log.WithFields(logrus.Fields{"timestamp": ts, "triggered": len(triggered)}).Info("snapshot ingested")
	return domain.OutcomeIngested, len(triggered), nil
}

func (p *Processor) recordFetchFailure(log logrus.FieldLogger, err error) {
	resource := "unknown"
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		resource = fetchErr.Resource
		log = log.WithFields(logrus.Fields{"resource": fetchErr.Resource, "status": fetchErr.Status})
	}
	p.metrics.UpstreamFailures.WithLabelValues(resource).Inc()
	log.WithError(err).Warn("upstream fetch failed")
}

func (p *Processor) deferRemainder(ctx context.Context, batch domain.TokenBatch, remaining []string) error {
	if p.deps.Requeue == nil {
		return ctx.Err()
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()

	next := domain.TokenBatch{
		ID:         uuid.NewString(),
		Mints:      append([]string(nil), remaining...),
		EnqueuedAt: p.now().UTC(),
	}
	if err := p.deps.Requeue.Enqueue(pubCtx, next); err != nil {
		return &domain.InfrastructureError{Op: "requeue remainder", Err: err}
	}
	return nil
}
