package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"rug-sentinel/internal/domain"
	"rug-sentinel/internal/provider"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

var noopTracer = trace.NewNoopTracerProvider().Tracer("test")

type memStore struct {
	mu        sync.Mutex
	bundles   map[string][]*domain.SnapshotBundle
	insertErr error
	clockErr  error
}

func newMemStore() *memStore {
	return &memStore{bundles: make(map[string][]*domain.SnapshotBundle)}
}

func (s *memStore) LatestSnapshotTime(ctx context.Context, mint string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clockErr != nil {
		return time.Time{}, false, s.clockErr
	}
	bundles := s.bundles[mint]
	if len(bundles) == 0 {
		return time.Time{}, false, nil
	}
	return bundles[len(bundles)-1].Snapshot.Timestamp, true, nil
}

func (s *memStore) InsertSnapshotBundle(ctx context.Context, bundle *domain.SnapshotBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if existing := s.bundles[bundle.Snapshot.Mint]; len(existing) > 0 && !bundle.DetectedAt.IsZero() {
		if !bundle.DetectedAt.After(existing[len(existing)-1].Snapshot.Timestamp) {
			return domain.ErrStaleSnapshot
		}
	}
	s.bundles[bundle.Snapshot.Mint] = append(s.bundles[bundle.Snapshot.Mint], bundle)
	return nil
}

func (s *memStore) count(mint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bundles[mint])
}

type recordingEvaluator struct {
	mu    sync.Mutex
	mints []string
	err   error
}

func (e *recordingEvaluator) Evaluate(ctx context.Context, mint string, snap *domain.MetricsSnapshot) ([]domain.TriggeredAlert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mints = append(e.mints, mint)
	return nil, e.err
}

type stubFetcher struct {
	reports        map[string]*domain.Report
	reportErr      map[string]error
	secondaryCalls int
	onReport       func(mint string)
}

func (f *stubFetcher) FetchReport(ctx context.Context, mint string) (*domain.Report, error) {
	if f.onReport != nil {
		f.onReport(mint)
	}
	if err := f.reportErr[mint]; err != nil {
		return nil, err
	}
	if r, ok := f.reports[mint]; ok {
		return r, nil
	}
	return &domain.Report{Mint: mint}, nil
}

func (f *stubFetcher) FetchSecondary(ctx context.Context, mint string) (domain.PriceQuote, domain.Votes, domain.InsiderGraph, error) {
	f.secondaryCalls++
	return domain.PriceQuote{Price: 1}, domain.Votes{Up: 1}, domain.InsiderGraph{}, nil
}

type recordingQueue struct {
	mu      sync.Mutex
	batches []domain.TokenBatch
	err     error
}

func (q *recordingQueue) Enqueue(ctx context.Context, batch domain.TokenBatch) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.batches = append(q.batches, batch)
	return nil
}

func newTestProcessor(fetcher Fetcher, store *memStore, eval AlertEvaluator, requeue BatchEnqueuer) *Processor {
	return NewProcessor(noopTracer, nil, nil, ProcessorDeps{
		Fetcher:   fetcher,
		Gate:      NewFreshnessGate(store, noopTracer),
		Persistor: NewPersistor(store, noopTracer),
		Evaluator: eval,
		Requeue:   requeue,
	}, time.Second)
}

func TestFreshnessGate(t *testing.T) {
	store := newMemStore()
	gate := NewFreshnessGate(store, noopTracer)
	ctx := context.Background()
	detected := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	stale, err := gate.IsStale(ctx, "MintA", detected)
	require.NoError(t, err)
	assert.False(t, stale, "first ingestion always proceeds")

	last := detected.Add(time.Minute)
	require.NoError(t, store.InsertSnapshotBundle(ctx, &domain.SnapshotBundle{Snapshot: domain.MetricsSnapshot{Mint: "MintA", Timestamp: last}}))

	cases := []struct {
		name     string
		detected time.Time
		want     bool
	}{
		{"older", detected, true},
		{"equal", last, true},
		{"newer", last.Add(time.Millisecond), false},
		{"missing", time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stale, err := gate.IsStale(ctx, "MintA", tc.detected)
			require.NoError(t, err)
			assert.Equal(t, tc.want, stale)
		})
	}

	store.clockErr = errors.New("boom")
	_, err = gate.IsStale(ctx, "MintA", detected)
	assert.Error(t, err)
}

func TestBuildBundle(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	usdc := 250.0
	unlock := int64(1767225600)
	lpPct := 80.0

	var holders []domain.TopHolder
	for i, pct := range []float64{5, 30, 1, 12, 40, 3, 7} {
		holders = append(holders, domain.TopHolder{Address: fmt.Sprintf("h%d", i), Amount: decimal.NewFromInt(int64(i)), Pct: pct})
	}
	var nodes []domain.InsiderNode
	for i := 0; i < 20; i++ {
		nodes = append(nodes, domain.InsiderNode{ID: fmt.Sprintf("a%d", i)})
	}
	var more []domain.InsiderNode
	for i := 0; i < 10; i++ {
		more = append(more, domain.InsiderNode{ID: fmt.Sprintf("b%d", i)})
	}

	data := &domain.UpstreamData{
		Report: &domain.Report{
			Score:                120,
			ScoreNormalised:      7,
			TotalHolders:         900,
			TotalMarketLiquidity: 5000,
			TopHolders:           holders,
			Markets: []domain.Market{
				{Pubkey: "first", LP: &domain.MarketLP{LPLockedPct: &lpPct}},
				{Pubkey: "second"},
			},
			Lockers: domain.Lockers{{Key: "l1", USDCLocked: &usdc, UnlockDate: &unlock}, {Key: "l2"}},
		},
		Price: domain.PriceQuote{Price: 0.5},
		Votes: domain.Votes{Up: 4, Down: 2},
		Graph: domain.InsiderGraph{Networks: []domain.InsiderNetwork{{Nodes: nodes}, {Nodes: more}}},
	}

	data.Report.DetectedAt = "2025-03-01T09:59:00Z"
	bundle := BuildBundle("MintA", ts, data)
	assert.True(t, bundle.DetectedAt.Equal(ts.Add(-time.Minute)))

	assert.Equal(t, domain.MetricsSnapshot{
		Timestamp: ts, Mint: "MintA", Price: 0.5, TotalMarketLiquidity: 5000, TotalHolders: 900,
		Score: 120, ScoreNormalised: 7, Upvotes: 4, Downvotes: 2,
	}, bundle.Snapshot)

	require.Len(t, bundle.Holders, 5)
	var pcts []float64
	for _, h := range bundle.Holders {
		pcts = append(pcts, h.Pct)
		assert.True(t, h.Timestamp.Equal(ts))
	}
	assert.Equal(t, []float64{40, 30, 12, 7, 5}, pcts)

	require.NotNil(t, bundle.Liquidity)
	assert.Equal(t, "first", bundle.Liquidity.MarketPubkey)
	assert.Equal(t, &lpPct, bundle.Liquidity.LPLockedPct)
	assert.Nil(t, bundle.Liquidity.LPLocked)
	assert.Equal(t, &usdc, bundle.Liquidity.USDCLocked)
	require.NotNil(t, bundle.Liquidity.UnlockDate)
	assert.Equal(t, unlock, bundle.Liquidity.UnlockDate.Unix())

	require.Len(t, bundle.InsiderNodes, 25)
	assert.Equal(t, "a0", bundle.InsiderNodes[0].NodeID)
	assert.Equal(t, "b4", bundle.InsiderNodes[24].NodeID)
}

func TestBuildBundleWithoutMarkets(t *testing.T) {
	bundle := BuildBundle("MintA", time.Now(), &domain.UpstreamData{Report: &domain.Report{}})
	assert.Nil(t, bundle.Liquidity)
	assert.Empty(t, bundle.Holders)
	assert.Empty(t, bundle.InsiderNodes)
}

func TestProcessBatchIdempotentSkip(t *testing.T) {
	store := newMemStore()
	last := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertSnapshotBundle(context.Background(), &domain.SnapshotBundle{Snapshot: domain.MetricsSnapshot{Mint: "MintA", Timestamp: last}}))

	fetcher := &stubFetcher{reports: map[string]*domain.Report{
		"MintA": {Mint: "MintA", DetectedAt: last.Add(-time.Hour).Format(time.RFC3339Nano)},
	}}
	eval := &recordingEvaluator{}
	p := newTestProcessor(fetcher, store, eval, nil)

	result, err := p.ProcessBatch(context.Background(), domain.TokenBatch{ID: "b1", Mints: []string{"MintA"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, store.count("MintA"), "no new snapshot")
	assert.Zero(t, fetcher.secondaryCalls, "secondary fetches are not spent on stale data")
	assert.Empty(t, eval.mints, "no evaluation for skipped asset")
}

func TestProcessBatchFirstIngestion(t *testing.T) {
	store := newMemStore()
	eval := &recordingEvaluator{}
	fetcher := &stubFetcher{reports: map[string]*domain.Report{
		"MintA": {Mint: "MintA", DetectedAt: "1970-01-01T00:00:00Z"},
	}}
	p := newTestProcessor(fetcher, store, eval, nil)

	result, err := p.ProcessBatch(context.Background(), domain.TokenBatch{ID: "b1", Mints: []string{"MintA"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Ingested)
	assert.Equal(t, 1, store.count("MintA"))
	assert.Equal(t, []string{"MintA"}, eval.mints)
}

func TestProcessBatchIsolatesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/Mint2/report") {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/report"):
			fmt.Fprint(w, `{"score":10,"totalHolders":5}`)
		case strings.HasSuffix(r.URL.Path, "/price"):
			fmt.Fprint(w, `{"price":2.5}`)
		case strings.HasSuffix(r.URL.Path, "/votes"):
			fmt.Fprint(w, `{"up":1,"down":0}`)
		case strings.HasSuffix(r.URL.Path, "/insiders/graph"):
			fmt.Fprint(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := provider.NewRugCheckProvider(noopTracer, provider.RugCheckConfig{
		RugCheckBaseURL: srv.URL,
		FluxBeamBaseURL: srv.URL,
		RequestsPerSec:  1000,
		Burst:           100,
	})
	store := newMemStore()
	p := newTestProcessor(fetcher, store, &recordingEvaluator{}, nil)

	result, err := p.ProcessBatch(context.Background(), domain.TokenBatch{ID: "b1", Mints: []string{"Mint1", "Mint2", "Mint3"}})
	require.NoError(t, err, "upstream failure must not fail the batch")
	assert.Equal(t, 2, result.Ingested)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, store.count("Mint1"))
	assert.Equal(t, 0, store.count("Mint2"))
	assert.Equal(t, 1, store.count("Mint3"))
}

func TestProcessBatchPersistenceFailureIsIsolated(t *testing.T) {
	store := newMemStore()
	store.insertErr = &domain.PersistenceError{Mint: "MintA", Op: "insert", Err: errors.New("check violation")}
	eval := &recordingEvaluator{}
	p := newTestProcessor(&stubFetcher{}, store, eval, nil)

	result, err := p.ProcessBatch(context.Background(), domain.TokenBatch{ID: "b1", Mints: []string{"MintA", "MintB"}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Empty(t, eval.mints, "no evaluation without a persisted snapshot")
}

func TestPersistRejectsCycleAlreadyStored(t *testing.T) {
	store := newMemStore()
	persistor := NewPersistor(store, noopTracer)
	detected := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	data := &domain.UpstreamData{Report: &domain.Report{Mint: "MintA", DetectedAt: detected.Format(time.RFC3339Nano)}}

	// both workers passed the gate before either committed
	_, err := persistor.Persist(context.Background(), "MintA", detected.Add(time.Second), data)
	require.NoError(t, err)
	_, err = persistor.Persist(context.Background(), "MintA", detected.Add(2*time.Second), data)
	assert.ErrorIs(t, err, domain.ErrStaleSnapshot)
	assert.Equal(t, 1, store.count("MintA"))
}

func TestProcessBatchLosingConcurrentWriterIsSkipped(t *testing.T) {
	store := newMemStore()
	store.insertErr = domain.ErrStaleSnapshot
	eval := &recordingEvaluator{}
	p := newTestProcessor(&stubFetcher{}, store, eval, nil)

	result, err := p.ProcessBatch(context.Background(), domain.TokenBatch{ID: "b1", Mints: []string{"MintA"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Failed)
	assert.Empty(t, eval.mints, "no evaluation for a snapshot that was not written")
}

func TestProcessBatchInfrastructureFailureAborts(t *testing.T) {
	store := newMemStore()
	store.clockErr = &domain.InfrastructureError{Op: "latest-snapshot-time", Err: errors.New("connection refused")}
	fetcher := &stubFetcher{}
	p := newTestProcessor(fetcher, store, &recordingEvaluator{}, nil)

	_, err := p.ProcessBatch(context.Background(), domain.TokenBatch{ID: "b1", Mints: []string{"MintA", "MintB"}})
	require.Error(t, err)
	assert.True(t, domain.IsInfrastructure(err))
	assert.Zero(t, fetcher.secondaryCalls)
}

func TestProcessBatchBudgetExhaustedFinishesCurrentAsset(t *testing.T) {
	store := newMemStore()
	queue := &recordingQueue{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &stubFetcher{onReport: func(mint string) {
		if mint == "Mint1" {
			cancel()
		}
	}}
	p := newTestProcessor(fetcher, store, &recordingEvaluator{}, queue)

	result, err := p.ProcessBatch(ctx, domain.TokenBatch{ID: "b1", Mints: []string{"Mint1", "Mint2", "Mint3"}, Attempt: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Ingested, "in-flight asset completes after the budget expires")
	assert.Equal(t, 2, result.Deferred)
	assert.Equal(t, 1, store.count("Mint1"))
	assert.Equal(t, 0, store.count("Mint2"))

	require.Len(t, queue.batches, 1)
	assert.Equal(t, []string{"Mint2", "Mint3"}, queue.batches[0].Mints)
	assert.Zero(t, queue.batches[0].Attempt, "remainder starts with a fresh attempt counter")
	assert.NotEqual(t, "b1", queue.batches[0].ID)
}

func TestProcessBatchBudgetExhaustedWithoutRequeue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestProcessor(&stubFetcher{}, newMemStore(), &recordingEvaluator{}, nil)

	_, err := p.ProcessBatch(ctx, domain.TokenBatch{ID: "b1", Mints: []string{"Mint1"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatcherPartitions(t *testing.T) {
	queue := &recordingQueue{}
	d := NewDispatcher(noopTracer, nil, queue, nil, 10)

	var mints []string
	for i := 0; i < 23; i++ {
		mints = append(mints, fmt.Sprintf("mint-%02d", i))
	}
	mints = append(mints, "mint-00", "")

	n, err := d.Dispatch(context.Background(), mints)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, queue.batches, 3)
	assert.Len(t, queue.batches[0].Mints, 10)
	assert.Len(t, queue.batches[1].Mints, 10)
	assert.Len(t, queue.batches[2].Mints, 3)
	assert.Equal(t, "mint-10", queue.batches[1].Mints[0], "batches are contiguous")
	assert.NotEqual(t, queue.batches[0].ID, queue.batches[1].ID)
}

func TestDispatcherEnqueueFailure(t *testing.T) {
	queue := &recordingQueue{err: errors.New("redis down")}
	d := NewDispatcher(noopTracer, nil, queue, nil, 2)

	n, err := d.Dispatch(context.Background(), []string{"a", "b", "c"})
	assert.Zero(t, n)
	assert.True(t, domain.IsInfrastructure(err))
}

type fakeMintLister []string

func (f fakeMintLister) ActiveMints(ctx context.Context) ([]string, error) { return f, nil }

func TestDispatchTrackedUnion(t *testing.T) {
	queue := &recordingQueue{}
	source := UnionAssets{StaticAssets{"a", "b"}, AlertAssets{Store: fakeMintLister{"b", "c"}}}
	d := NewDispatcher(noopTracer, nil, queue, source, 10)

	n, err := d.DispatchTracked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a", "b", "c"}, queue.batches[0].Mints)
}

func TestPartitionEmpty(t *testing.T) {
	assert.Empty(t, Partition(nil, 10))
}
