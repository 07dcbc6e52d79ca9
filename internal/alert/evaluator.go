package alert

import (
	"context"
	"sync"
	"time"

	"rug-sentinel/internal/domain"
	"rug-sentinel/internal/observability"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RuleStore reads pending rules and applies the one-way triggered transition.
type RuleStore interface {
	ListPending(ctx context.Context, mint string) ([]domain.AlertRule, error)
	MarkTriggered(ctx context.Context, ids []string, at time.Time) ([]string, error)
}

type Notifier interface {
	Notify(ctx context.Context, rule domain.AlertRule, value float64) bool
}

// Evaluator checks a fresh snapshot against every pending rule of its mint.
type Evaluator struct {
	store    RuleStore
	notifier Notifier
	tracer   trace.Tracer
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewEvaluator(tracer trace.Tracer, logger logrus.FieldLogger, metrics *observability.Metrics, store RuleStore, notifier Notifier) *Evaluator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Evaluator{
		store:    store,
		notifier: notifier,
		tracer:   tracer,
		logger:   logger,
		metrics:  observability.Discard(metrics),
		now:      time.Now,
	}
}

// Evaluate marks every matching rule triggered in one update and only then notifies. A failed
// notification never re-arms a rule; a failed update sends nothing.
func (e *Evaluator) Evaluate(ctx context.Context, mint string, snapshot *domain.MetricsSnapshot) ([]domain.TriggeredAlert, error) {
	ctx, span := e.tracer.Start(ctx, "alert-evaluator.evaluate", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	log := e.logger.WithField("mint", mint)

	rules, err := e.store.ListPending(ctx, mint)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	var matched []domain.TriggeredAlert
	for _, rule := range rules {
		value, reason, ok := Check(rule, snapshot)
		if reason != "" {
			e.metrics.AlertsSkipped.WithLabelValues(string(reason)).Inc()
			log.WithFields(logrus.Fields{
				"alert_id":   rule.ID,
				"parameter":  rule.Parameter,
				"comparison": rule.Comparison,
				"reason":     reason,
			}).Warn("alert rule skipped")
			continue
		}
		if ok {
			matched = append(matched, domain.TriggeredAlert{Rule: rule, Value: value})
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matched))
	for i, t := range matched {
		ids[i] = t.Rule.ID
	}
	at := e.now().UTC()
	marked, err := e.store.MarkTriggered(ctx, ids, at)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	markedSet := make(map[string]struct{}, len(marked))
	for _, id := range marked {
		markedSet[id] = struct{}{}
	}
	triggered := matched[:0]
	for _, t := range matched {
		if _, ok := markedSet[t.Rule.ID]; ok {
			t.Rule.TriggeredAt = &at
			triggered = append(triggered, t)
		}
	}
	e.metrics.AlertsTriggered.Add(float64(len(triggered)))
	log.WithField("count", len(triggered)).Info("alerts triggered")

	e.notifyAll(ctx, triggered)
	return triggered, nil
}

func (e *Evaluator) notifyAll(ctx context.Context, triggered []domain.TriggeredAlert) {
	if e.notifier == nil {
		return
	}
	var wg sync.WaitGroup
	for _, t := range triggered {
		wg.Add(1)
		go func(t domain.TriggeredAlert) {
			defer wg.Done()
			e.notifier.Notify(ctx, t.Rule, t.Value)
		}(t)
	}
	wg.Wait()
}

// Check evaluates one rule. reason is set when the rule had to be skipped; otherwise ok
// reports whether the condition holds for value.
func Check(rule domain.AlertRule, snapshot *domain.MetricsSnapshot) (value float64, reason domain.SkipReason, ok bool) {
	v, lookup := snapshot.Value(rule.Parameter)
	switch lookup {
	case domain.MetricUnknown:
		return 0, domain.SkipUnknownParameter, false
	case domain.MetricMissing:
		return 0, domain.SkipMissingValue, false
	case domain.MetricNotNumeric:
		return 0, domain.SkipNonNumericValue, false
	}
	matched, known := rule.Comparison.Matches(v, rule.Threshold)
	if !known {
		return v, domain.SkipUnknownComparison, false
	}
	return v, "", matched
}
