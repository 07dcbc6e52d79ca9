package domain

import "math"

// Metric is a snapshot attribute an alert rule may watch.
type Metric string

const (
	MetricPrice                Metric = "price"
	MetricTotalMarketLiquidity Metric = "totalMarketLiquidity"
	MetricTotalHolders         Metric = "totalHolders"
	MetricScore                Metric = "score"
	MetricScoreNormalised      Metric = "score_normalised"
	MetricUpvotes              Metric = "upvotes"
	MetricDownvotes            Metric = "downvotes"
)

var metricAccessors = map[Metric]func(*MetricsSnapshot) float64{
	MetricPrice:                func(s *MetricsSnapshot) float64 { return s.Price },
	MetricTotalMarketLiquidity: func(s *MetricsSnapshot) float64 { return s.TotalMarketLiquidity },
	MetricTotalHolders:         func(s *MetricsSnapshot) float64 { return float64(s.TotalHolders) },
	MetricScore:                func(s *MetricsSnapshot) float64 { return s.Score },
	MetricScoreNormalised:      func(s *MetricsSnapshot) float64 { return s.ScoreNormalised },
	MetricUpvotes:              func(s *MetricsSnapshot) float64 { return float64(s.Upvotes) },
	MetricDownvotes:            func(s *MetricsSnapshot) float64 { return float64(s.Downvotes) },
}

// SupportedMetrics lists the recognised metric names in display order.
var SupportedMetrics = []Metric{
	MetricPrice,
	MetricTotalMarketLiquidity,
	MetricTotalHolders,
	MetricScore,
	MetricScoreNormalised,
	MetricUpvotes,
	MetricDownvotes,
}

// ParseMetric resolves a free-form parameter name. ok is false for unknown names.
func ParseMetric(name string) (Metric, bool) {
	m := Metric(name)
	_, ok := metricAccessors[m]
	return m, ok
}

// MetricLookup is the outcome of reading a metric off a snapshot.
type MetricLookup int

const (
	MetricFound MetricLookup = iota
	MetricUnknown
	MetricMissing
	MetricNotNumeric
)

// Value reads the named metric. The returned status distinguishes an unknown name,
// a missing snapshot, and a value that is not a finite number.
func (s *MetricsSnapshot) Value(name string) (float64, MetricLookup) {
	accessor, ok := metricAccessors[Metric(name)]
	if !ok {
		return 0, MetricUnknown
	}
	if s == nil {
		return 0, MetricMissing
	}
	v := accessor(s)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v, MetricNotNumeric
	}
	return v, MetricFound
}
