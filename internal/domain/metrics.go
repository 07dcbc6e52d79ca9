package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MetricsSnapshot is one timestamped record of a token's metrics from a single ingestion cycle.
type MetricsSnapshot struct {
	Timestamp            time.Time `json:"timestamp"`
	Mint                 string    `json:"mint"`
	Price                float64   `json:"price"`
	TotalMarketLiquidity float64   `json:"totalMarketLiquidity"`
	TotalHolders         int64     `json:"totalHolders"`
	Score                float64   `json:"score"`
	ScoreNormalised      float64   `json:"score_normalised"`
	Upvotes              int64     `json:"upvotes"`
	Downvotes            int64     `json:"downvotes"`
}

// HolderMovement is one of the top holders captured alongside a snapshot.
type HolderMovement struct {
	Timestamp time.Time       `json:"timestamp"`
	Mint      string          `json:"mint"`
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	Pct       float64         `json:"pct"`
	Insider   bool            `json:"insider"`
}

// LiquidityEvent records the liquidity lock state of the token's first market.
// Pointer fields are null when the upstream report has no locker or LP data.
type LiquidityEvent struct {
	Timestamp    time.Time  `json:"timestamp"`
	Mint         string     `json:"mint"`
	MarketPubkey string     `json:"market_pubkey"`
	LPLocked     *float64   `json:"lpLocked"`
	LPLockedPct  *float64   `json:"lpLockedPct"`
	USDCLocked   *float64   `json:"usdcLocked"`
	UnlockDate   *time.Time `json:"unlockDate"`
}

// InsiderGraphNode is one node of an upstream insider network.
type InsiderGraphNode struct {
	Timestamp   time.Time `json:"timestamp"`
	Mint        string    `json:"mint"`
	NodeID      string    `json:"node_id"`
	Participant bool      `json:"participant"`
	Holdings    float64   `json:"holdings"`
}

// SnapshotBundle groups every record produced by one ingestion cycle for one token.
// All records share Snapshot.Timestamp. DetectedAt is the upstream detection time the
// bundle was built from, zero when upstream did not report one.
type SnapshotBundle struct {
	DetectedAt   time.Time
	Snapshot     MetricsSnapshot
	Holders      []HolderMovement
	Liquidity    *LiquidityEvent
	InsiderNodes []InsiderGraphNode
}

// Point is a single value of a stored time series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
