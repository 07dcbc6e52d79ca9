package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SnapshotClock reports the newest stored snapshot time for a mint.
type SnapshotClock interface {
	LatestSnapshotTime(ctx context.Context, mint string) (time.Time, bool, error)
}

// FreshnessGate stops re-ingesting a mint whose upstream data has not advanced.
type FreshnessGate struct {
	store  SnapshotClock
	tracer trace.Tracer
}

func NewFreshnessGate(store SnapshotClock, tracer trace.Tracer) *FreshnessGate {
	return &FreshnessGate{store: store, tracer: tracer}
}

// IsStale is true iff a snapshot exists and detectedAt is not after it. A zero detectedAt
// (field absent upstream) never counts as stale.
func (g *FreshnessGate) IsStale(ctx context.Context, mint string, detectedAt time.Time) (bool, error) {
	ctx, span := g.tracer.Start(ctx, "freshness-gate.is-stale", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	last, ok, err := g.store.LatestSnapshotTime(ctx, mint)
	if err != nil {
		return false, err
	}
	if !ok || detectedAt.IsZero() {
		return false, nil
	}
	return !detectedAt.After(last), nil
}
