package repository

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"rug-sentinel/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

type fakeBatchResults struct {
	pgx.BatchResults
	failAt int
	execs  int
	closed bool
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	b.execs++
	if b.failAt > 0 && b.execs == b.failAt {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23503", Message: "foreign key violation"}
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (b *fakeBatchResults) Close() error {
	b.closed = true
	return nil
}

type fakeTx struct {
	pgx.Tx
	results    *fakeBatchResults
	queued     int
	committed  bool
	rolledBack bool
	execs      []string
	latest     *time.Time
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return latestRow{latest: t.latest}
}

type latestRow struct{ latest *time.Time }

func (r latestRow) Scan(dest ...any) error {
	*dest[0].(**time.Time) = r.latest
	return nil
}

func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	t.queued = b.Len()
	return t.results
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakePool struct {
	PgxPool
	tx       *fakeTx
	beginErr error
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.tx, nil
}

func sampleBundle() *domain.SnapshotBundle {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	locked := 99.5
	return &domain.SnapshotBundle{
		Snapshot: domain.MetricsSnapshot{Timestamp: ts, Mint: "MintA", Price: 1.2, TotalHolders: 10},
		Holders: []domain.HolderMovement{
			{Timestamp: ts, Mint: "MintA", Address: "h1", Amount: decimal.NewFromInt(500), Pct: 50},
			{Timestamp: ts, Mint: "MintA", Address: "h2", Amount: decimal.NewFromInt(100), Pct: 10},
		},
		Liquidity: &domain.LiquidityEvent{Timestamp: ts, Mint: "MintA", MarketPubkey: "pool", LPLockedPct: &locked},
		InsiderNodes: []domain.InsiderGraphNode{
			{Timestamp: ts, Mint: "MintA", NodeID: "n1"},
		},
	}
}

func TestBuildSnapshotBatchQueuesEveryRow(t *testing.T) {
	batch := buildSnapshotBatch(sampleBundle())
	// 1 snapshot + 2 holders + 1 liquidity + 1 node
	if batch.Len() != 5 {
		t.Fatalf("expected 5 statements, got %d", batch.Len())
	}

	bundle := sampleBundle()
	bundle.Liquidity = nil
	bundle.InsiderNodes = nil
	if got := buildSnapshotBatch(bundle).Len(); got != 3 {
		t.Fatalf("expected 3 statements without liquidity/nodes, got %d", got)
	}
}

func TestInsertSnapshotBundleCommits(t *testing.T) {
	tx := &fakeTx{results: &fakeBatchResults{}}
	repo := NewMetricsRepository(&fakePool{tx: tx}, trace.NewNoopTracerProvider().Tracer("test"))

	if err := repo.InsertSnapshotBundle(context.Background(), sampleBundle()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.committed || tx.rolledBack {
		t.Fatalf("expected commit without rollback: %+v", tx)
	}
	if tx.results.execs != tx.queued {
		t.Fatalf("every queued statement must be read before commit: %d of %d", tx.results.execs, tx.queued)
	}
}

func TestInsertSnapshotBundleRollsBackOnAnyFailure(t *testing.T) {
	tx := &fakeTx{results: &fakeBatchResults{failAt: 4}}
	repo := NewMetricsRepository(&fakePool{tx: tx}, trace.NewNoopTracerProvider().Tracer("test"))

	err := repo.InsertSnapshotBundle(context.Background(), sampleBundle())
	var persistErr *domain.PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if persistErr.Mint != "MintA" {
		t.Fatalf("unexpected mint on error: %s", persistErr.Mint)
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("expected rollback without commit: %+v", tx)
	}
	if !tx.results.closed {
		t.Fatal("batch results should be closed")
	}
}

func TestInsertSnapshotBundleBeginFailureIsInfrastructure(t *testing.T) {
	pool := &fakePool{beginErr: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	repo := NewMetricsRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	err := repo.InsertSnapshotBundle(context.Background(), sampleBundle())
	if !domain.IsInfrastructure(err) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
}

func TestHistoryRejectsUnknownSeries(t *testing.T) {
	repo := NewMetricsRepository(&fakePool{}, trace.NewNoopTracerProvider().Tracer("test"))
	if _, err := repo.History(context.Background(), "MintA", "volume", 10, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	if err := classify("m", "op", &pgconn.PgError{Code: "23505"}); domain.IsInfrastructure(err) {
		t.Fatal("constraint violation is a persistence error")
	}
	if err := classify("m", "op", &pgconn.PgError{Code: "08006"}); !domain.IsInfrastructure(err) {
		t.Fatal("connection failure class should be infrastructure")
	}
	if err := classify("m", "op", context.DeadlineExceeded); domain.IsInfrastructure(err) {
		t.Fatal("caller deadline should stay a persistence error")
	}
	if classify("m", "op", nil) != nil {
		t.Fatal("nil should stay nil")
	}
}

func TestInsertSnapshotBundleLocksMintFirst(t *testing.T) {
	tx := &fakeTx{results: &fakeBatchResults{}}
	repo := NewMetricsRepository(&fakePool{tx: tx}, trace.NewNoopTracerProvider().Tracer("test"))

	if err := repo.InsertSnapshotBundle(context.Background(), sampleBundle()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tx.execs) != 1 || tx.execs[0] != lockMintSQL {
		t.Fatalf("expected the mint lock before any insert, got %v", tx.execs)
	}
}

func TestInsertSnapshotBundleRejectsStaleCycle(t *testing.T) {
	stored := time.Date(2025, 3, 1, 10, 0, 5, 0, time.UTC)
	tx := &fakeTx{results: &fakeBatchResults{}, latest: &stored}
	repo := NewMetricsRepository(&fakePool{tx: tx}, trace.NewNoopTracerProvider().Tracer("test"))

	bundle := sampleBundle()
	bundle.DetectedAt = stored.Add(-time.Minute)
	err := repo.InsertSnapshotBundle(context.Background(), bundle)
	if !errors.Is(err, domain.ErrStaleSnapshot) {
		t.Fatalf("expected ErrStaleSnapshot, got %v", err)
	}
	if tx.committed || !tx.rolledBack || tx.queued != 0 {
		t.Fatalf("stale bundle must roll back without inserting: %+v", tx)
	}

	tx = &fakeTx{results: &fakeBatchResults{}, latest: &stored}
	repo = NewMetricsRepository(&fakePool{tx: tx}, trace.NewNoopTracerProvider().Tracer("test"))
	bundle.DetectedAt = stored.Add(time.Minute)
	if err := repo.InsertSnapshotBundle(context.Background(), bundle); err != nil {
		t.Fatalf("newer cycle should commit: %v", err)
	}
	if !tx.committed {
		t.Fatal("expected commit")
	}
}
