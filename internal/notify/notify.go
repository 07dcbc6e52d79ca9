// Package notify delivers triggered-alert messages to users.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"rug-sentinel/internal/domain"
	"rug-sentinel/internal/observability"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Channel sends one message. ok=false with a nil error means the channel declined
// delivery without an underlying failure (for example, no recipient configured).
type Channel interface {
	Name() string
	Send(ctx context.Context, to, subject, body string) (ok bool, err error)
}

// Dispatcher fans a triggered alert out to every configured channel.
type Dispatcher struct {
	channels []Channel
	tracer   trace.Tracer
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
}

func NewDispatcher(tracer trace.Tracer, logger logrus.FieldLogger, metrics *observability.Metrics, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		channels: channels,
		tracer:   tracer,
		logger:   logger,
		metrics:  observability.Discard(metrics),
	}
}

// Notify reports whether at least one channel delivered the message. Failures are
// logged and counted but never returned.
func (d *Dispatcher) Notify(ctx context.Context, rule domain.AlertRule, value float64) bool {
	ctx, span := d.tracer.Start(ctx, "notification-dispatcher.notify", trace.WithAttributes(
		attribute.String("alert_id", rule.ID),
		attribute.String("mint", rule.Mint),
	))
	defer span.End()

	subject, body := FormatMessage(rule, value)

	var (
		mu        sync.Mutex
		delivered bool
		wg        sync.WaitGroup
	)
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			ok := d.send(ctx, ch, rule, subject, body)
			if ok {
				mu.Lock()
				delivered = true
				mu.Unlock()
			}
		}(ch)
	}
	wg.Wait()

	span.SetAttributes(attribute.Bool("delivered", delivered))
	return delivered
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, rule domain.AlertRule, subject, body string) bool {
	log := d.logger.WithFields(logrus.Fields{
		"alert_id": rule.ID,
		"channel":  ch.Name(),
	})

	ok, err := ch.Send(ctx, rule.UserEmail, subject, body)
	switch {
	case err != nil:
		d.metrics.Notifications.WithLabelValues(ch.Name(), "error").Inc()
		nerr := &domain.NotificationError{Channel: ch.Name(), AlertID: rule.ID, Err: err}
		log.WithError(nerr).Error("notification failed")
		return false
	case !ok:
		d.metrics.Notifications.WithLabelValues(ch.Name(), "declined").Inc()
		log.Warn("notification not delivered")
		return false
	default:
		d.metrics.Notifications.WithLabelValues(ch.Name(), "sent").Inc()
		log.Info("notification sent")
		return true
	}
}

// FormatMessage renders the subject and body sent for a triggered rule.
func FormatMessage(rule domain.AlertRule, value float64) (subject, body string) {
	subject = fmt.Sprintf("🚀 Alert Triggered for %s!", rule.Mint)
	body = fmt.Sprintf(
		"Your alert condition was met:\n\nToken: %s\nParameter: %s\nCondition: %s %s\nCurrent Value: %s\n\nThis alert will not trigger again unless reset.",
		rule.Mint,
		rule.Parameter,
		rule.Comparison.Phrase(),
		formatFloat(rule.Threshold),
		formatFloat(value),
	)
	return subject, body
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
