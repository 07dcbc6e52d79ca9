package ingest

import (
	"context"
	"errors"
	"sort"
	"time"

	"rug-sentinel/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxHolderRows  = 5
	maxInsiderRows = 25
)

// SnapshotWriter commits a snapshot bundle atomically.
type SnapshotWriter interface {
	InsertSnapshotBundle(ctx context.Context, bundle *domain.SnapshotBundle) error
}

type Persistor struct {
	store  SnapshotWriter
	tracer trace.Tracer
}

func NewPersistor(store SnapshotWriter, tracer trace.Tracer) *Persistor {
	return &Persistor{store: store, tracer: tracer}
}

// Persist writes the full snapshot bundle for mint at ts and returns the snapshot as written.
// It returns domain.ErrStaleSnapshot when another worker stored this upstream cycle first.
func (p *Persistor) Persist(ctx context.Context, mint string, ts time.Time, data *domain.UpstreamData) (*domain.MetricsSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "persistor.persist", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	bundle := BuildBundle(mint, ts, data)
	if err := p.store.InsertSnapshotBundle(ctx, bundle); err != nil {
		if !errors.Is(err, domain.ErrStaleSnapshot) {
			span.RecordError(err)
		}
		return nil, err
	}
	snap := bundle.Snapshot
	return &snap, nil
}

// BuildBundle maps one fetch set onto storage rows. Every row carries ts.
func BuildBundle(mint string, ts time.Time, data *domain.UpstreamData) *domain.SnapshotBundle {
	report := data.Report
	if report == nil {
		report = &domain.Report{}
	}

	bundle := &domain.SnapshotBundle{
		DetectedAt: report.DetectedTime(),
		Snapshot: domain.MetricsSnapshot{
			Timestamp:            ts,
			Mint:                 mint,
			Price:                data.Price.Price,
			TotalMarketLiquidity: report.TotalMarketLiquidity,
			TotalHolders:         report.TotalHolders,
			Score:                report.Score,
			ScoreNormalised:      report.ScoreNormalised,
			Upvotes:              data.Votes.Up,
			Downvotes:            data.Votes.Down,
		},
	}

	holders := make([]domain.TopHolder, len(report.TopHolders))
	copy(holders, report.TopHolders)
	sort.SliceStable(holders, func(i, j int) bool { return holders[i].Pct > holders[j].Pct })
	if len(holders) > maxHolderRows {
		holders = holders[:maxHolderRows]
	}
	for _, h := range holders {
		bundle.Holders = append(bundle.Holders, domain.HolderMovement{
			Timestamp: ts,
			Mint:      mint,
			Address:   h.Address,
			Amount:    h.Amount,
			Pct:       h.Pct,
			Insider:   h.Insider,
		})
	}

	if len(report.Markets) > 0 {
		market := report.Markets[0]
		event := &domain.LiquidityEvent{Timestamp: ts, Mint: mint, MarketPubkey: market.Pubkey}
		if market.LP != nil {
			event.LPLocked = market.LP.LPLocked
			event.LPLockedPct = market.LP.LPLockedPct
		}
		if len(report.Lockers) > 0 {
			locker := report.Lockers[0]
			event.USDCLocked = locker.USDCLocked
			event.UnlockDate = locker.UnlockTime()
		}
		bundle.Liquidity = event
	}

	nodes := data.Graph.Nodes()
	if len(nodes) > maxInsiderRows {
		nodes = nodes[:maxInsiderRows]
	}
	for _, n := range nodes {
		bundle.InsiderNodes = append(bundle.InsiderNodes, domain.InsiderGraphNode{
			Timestamp:   ts,
			Mint:        mint,
			NodeID:      n.ID,
			Participant: n.Participant,
			Holdings:    n.Holdings,
		})
	}

	return bundle
}
