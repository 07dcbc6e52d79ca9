package repository

import (
	"context"
	"fmt"
	"time"

	"rug-sentinel/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Series names accepted by History.
const (
	SeriesPrice     = "price"
	SeriesLiquidity = "liquidity"
	SeriesHolders   = "holders"
)

var seriesColumns = map[string]string{
	SeriesPrice:     "price",
	SeriesLiquidity: "total_market_liquidity",
	SeriesHolders:   "total_holders::double precision",
}

const insertSnapshotSQL = `INSERT INTO token_metrics
    (mint, timestamp, price, total_market_liquidity, total_holders, score, score_normalised, upvotes, downvotes)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const latestSnapshotTimeSQL = `SELECT MAX(timestamp) FROM token_metrics WHERE mint = $1`

// lockMintSQL serialises snapshot writers for one mint until the transaction ends.
const lockMintSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

const insertHolderSQL = `INSERT INTO holder_movements (mint, timestamp, address, amount, pct, insider)
 VALUES ($1, $2, $3, $4::numeric, $5, $6)`

const insertLiquiditySQL = `INSERT INTO liquidity_events
    (mint, timestamp, market_pubkey, lp_locked, lp_locked_pct, usdc_locked, unlock_date)
 VALUES ($1, $2, $3, $4, $5, $6, $7)`

const insertInsiderNodeSQL = `INSERT INTO insider_graph_nodes (mint, timestamp, node_id, participant, holdings)
 VALUES ($1, $2, $3, $4, $5)`

type MetricsRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewMetricsRepository(pool PgxPool, tracer trace.Tracer) *MetricsRepository {
	return &MetricsRepository{pool: pool, tracer: tracer}
}

// LatestSnapshotTime returns the newest stored snapshot timestamp for mint. ok is false when
// nothing has been stored yet.
func (r *MetricsRepository) LatestSnapshotTime(ctx context.Context, mint string) (time.Time, bool, error) {
	ctx, span := r.tracer.Start(ctx, "metrics-repo.latest-snapshot-time", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	var latest *time.Time
	err := r.pool.QueryRow(ctx, latestSnapshotTimeSQL, mint).Scan(&latest)
	if err != nil {
		return time.Time{}, false, classifyRead("latest-snapshot-time", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}

// InsertSnapshotBundle writes the snapshot and its related rows in one transaction. Every
// queued statement's result is read before commit; any failure rolls everything back.
// Writers for the same mint are serialised, and a bundle whose DetectedAt is not after the
// newest stored snapshot is rejected with domain.ErrStaleSnapshot.
func (r *MetricsRepository) InsertSnapshotBundle(ctx context.Context, bundle *domain.SnapshotBundle) error {
	mint := bundle.Snapshot.Mint
	ctx, span := r.tracer.Start(ctx, "metrics-repo.insert-snapshot-bundle", trace.WithAttributes(
		attribute.String("mint", mint),
		attribute.Int("holders", len(bundle.Holders)),
		attribute.Int("insider_nodes", len(bundle.InsiderNodes)),
	))
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify(mint, "begin", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, lockMintSQL, mint); err != nil {
		return classify(mint, "lock mint", err)
	}
	if !bundle.DetectedAt.IsZero() {
		var latest *time.Time
		if err := tx.QueryRow(ctx, latestSnapshotTimeSQL, mint).Scan(&latest); err != nil {
			return classify(mint, "latest snapshot time", err)
		}
		if latest != nil && !bundle.DetectedAt.After(*latest) {
			span.SetAttributes(attribute.Bool("stale", true))
			return domain.ErrStaleSnapshot
		}
	}

	batch := buildSnapshotBatch(bundle)
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			span.RecordError(err)
			return classify(mint, fmt.Sprintf("insert statement %d", i), err)
		}
	}
	if err := br.Close(); err != nil {
		return classify(mint, "close batch", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(mint, "commit", err)
	}
	return nil
}

func buildSnapshotBatch(bundle *domain.SnapshotBundle) *pgx.Batch {
	s := bundle.Snapshot
	batch := &pgx.Batch{}
	batch.Queue(insertSnapshotSQL,
		s.Mint, s.Timestamp, s.Price, s.TotalMarketLiquidity, s.TotalHolders,
		s.Score, s.ScoreNormalised, s.Upvotes, s.Downvotes,
	)
	for _, h := range bundle.Holders {
		batch.Queue(insertHolderSQL, h.Mint, h.Timestamp, h.Address, h.Amount.String(), h.Pct, h.Insider)
	}
	if l := bundle.Liquidity; l != nil {
		batch.Queue(insertLiquiditySQL, l.Mint, l.Timestamp, l.MarketPubkey, l.LPLocked, l.LPLockedPct, l.USDCLocked, l.UnlockDate)
	}
	for _, n := range bundle.InsiderNodes {
		batch.Queue(insertInsiderNodeSQL, n.Mint, n.Timestamp, n.NodeID, n.Participant, n.Holdings)
	}
	return batch
}

// LatestSnapshot returns the newest snapshot for mint or domain.ErrNotFound.
func (r *MetricsRepository) LatestSnapshot(ctx context.Context, mint string) (*domain.MetricsSnapshot, error) {
	ctx, span := r.tracer.Start(ctx, "metrics-repo.latest-snapshot")
	defer span.End()

	s := &domain.MetricsSnapshot{}
	err := r.pool.QueryRow(ctx,
		`SELECT mint, timestamp, price, total_market_liquidity, total_holders, score, score_normalised, upvotes, downvotes
		 FROM token_metrics
		 WHERE mint = $1
		 ORDER BY timestamp DESC
		 LIMIT 1`,
		mint,
	).Scan(&s.Mint, &s.Timestamp, &s.Price, &s.TotalMarketLiquidity, &s.TotalHolders, &s.Score, &s.ScoreNormalised, &s.Upvotes, &s.Downvotes)
	if isNotFoundError(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classifyRead("latest-snapshot", err)
	}
	return s, nil
}

// History returns a page of one series, newest page first, each page in chronological order.
func (r *MetricsRepository) History(ctx context.Context, mint, series string, limit, offset int) ([]domain.Point, error) {
	column, ok := seriesColumns[series]
	if !ok {
		return nil, fmt.Errorf("%w: unknown series %q", domain.ErrInvalidInput, series)
	}

	ctx, span := r.tracer.Start(ctx, "metrics-repo.history", trace.WithAttributes(attribute.String("series", series)))
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT timestamp, `+column+`
		 FROM token_metrics
		 WHERE mint = $1
		 ORDER BY timestamp DESC
		 LIMIT $2 OFFSET $3`,
		mint, limit, offset,
	)
	if err != nil {
		return nil, classifyRead("history", err)
	}
	defer rows.Close()

	points := make([]domain.Point, 0, limit)
	for rows.Next() {
		var p domain.Point
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyRead("history", err)
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// TopHolders returns up to five holders from the newest holder snapshot, largest first.
func (r *MetricsRepository) TopHolders(ctx context.Context, mint string) ([]domain.HolderMovement, error) {
	ctx, span := r.tracer.Start(ctx, "metrics-repo.top-holders")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT mint, timestamp, address, amount::text, pct, insider
		 FROM holder_movements
		 WHERE mint = $1
		   AND timestamp = (SELECT MAX(timestamp) FROM holder_movements WHERE mint = $1)
		 ORDER BY pct DESC
		 LIMIT 5`,
		mint,
	)
	if err != nil {
		return nil, classifyRead("top-holders", err)
	}
	defer rows.Close()

	holders := []domain.HolderMovement{}
	for rows.Next() {
		var (
			h      domain.HolderMovement
			amount string
		)
		if err := rows.Scan(&h.Mint, &h.Timestamp, &h.Address, &amount, &h.Pct, &h.Insider); err != nil {
			return nil, err
		}
		if h.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse holder amount %q: %w", amount, err)
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}

// LatestLiquidityLock returns the newest liquidity event or domain.ErrNotFound.
func (r *MetricsRepository) LatestLiquidityLock(ctx context.Context, mint string) (*domain.LiquidityEvent, error) {
	ctx, span := r.tracer.Start(ctx, "metrics-repo.latest-liquidity-lock")
	defer span.End()

	l := &domain.LiquidityEvent{}
	err := r.pool.QueryRow(ctx,
		`SELECT mint, timestamp, market_pubkey, lp_locked, lp_locked_pct, usdc_locked, unlock_date
		 FROM liquidity_events
		 WHERE mint = $1
		 ORDER BY timestamp DESC
		 LIMIT 1`,
		mint,
	).Scan(&l.Mint, &l.Timestamp, &l.MarketPubkey, &l.LPLocked, &l.LPLockedPct, &l.USDCLocked, &l.UnlockDate)
	if isNotFoundError(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classifyRead("latest-liquidity-lock", err)
	}
	return l, nil
}
