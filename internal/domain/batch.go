package domain

import "time"

// DefaultBatchSize is the number of mints per queued batch.
const DefaultBatchSize = 10

// TokenBatch is one unit of queued work.
type TokenBatch struct {
	ID         string    `json:"id"`
	Mints      []string  `json:"mints"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// AssetOutcome is what happened to one mint inside a batch.
type AssetOutcome string

const (
	OutcomeIngested AssetOutcome = "ingested"
	OutcomeSkipped  AssetOutcome = "skipped"
	OutcomeFailed   AssetOutcome = "failed"
	OutcomeDeferred AssetOutcome = "deferred"
)

// BatchResult summarises a processed batch.
type BatchResult struct {
	BatchID   string
	Ingested  int
	Skipped   int
	Failed    int
	Deferred  int
	Triggered int
}

func (r *BatchResult) Record(o AssetOutcome) {
	switch o {
	case OutcomeIngested:
		r.Ingested++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	case OutcomeDeferred:
		r.Deferred++
	}
}
