package job

import (
	"context"
	"errors"
	"time"

	"rug-sentinel/internal/queue"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type TrackedDispatcher interface {
	DispatchTracked(ctx context.Context) (int, error)
}

// BatchRunner consumes queued batches until ctx is done.
type BatchRunner interface {
	Run(ctx context.Context) error
}

// UpdateJob is the scheduled trigger: every interval it queues all tracked mints and then
// consumes the queue for at most one run budget.
type UpdateJob struct {
	tracer     trace.Tracer
	logger     logrus.FieldLogger
	dispatcher TrackedDispatcher
	runner     BatchRunner
	interval   time.Duration
	budget     time.Duration
}

func NewUpdateJob(tracer trace.Tracer, logger logrus.FieldLogger, dispatcher TrackedDispatcher, runner BatchRunner, intervalSecs, budgetSecs int) *UpdateJob {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UpdateJob{
		tracer:     tracer,
		logger:     logger.WithField("job", "token-updates"),
		dispatcher: dispatcher,
		runner:     runner,
		interval:   time.Duration(intervalSecs) * time.Second,
		budget:     time.Duration(budgetSecs) * time.Second,
	}
}

// Start runs immediately and then on every tick. Blocks until ctx is cancelled.
func (j *UpdateJob) Start(ctx context.Context) {
	j.logger.WithFields(logrus.Fields{"interval": j.interval, "budget": j.budget}).Info("update job starting")

	j.runLogged(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("update job stopped")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *UpdateJob) runLogged(ctx context.Context) {
	if err := j.RunOnce(ctx); err != nil {
		j.logger.WithError(err).Error("update run failed")
	}
}

// RunOnce queues the tracked mints and consumes for one budget. A dispatch failure does not
// skip consumption: batches left from earlier runs are still processed.
func (j *UpdateJob) RunOnce(ctx context.Context) error {
	ctx, span := j.tracer.Start(ctx, "update-job.run")
	defer span.End()

	start := time.Now()
	queued, dispatchErr := j.dispatcher.DispatchTracked(ctx)
	if dispatchErr != nil {
		span.RecordError(dispatchErr)
		j.logger.WithError(dispatchErr).Error("dispatch failed")
	}
	span.SetAttributes(attribute.Int("batches_queued", queued))

	budgetCtx, cancel := context.WithTimeout(ctx, j.budget)
	defer cancel()
	runErr := j.runner.Run(budgetCtx)
	if errors.Is(runErr, queue.ErrDrainTimeout) {
		j.logger.Warn("run budget ended with batches still in flight")
		runErr = nil
	}

	j.logger.WithFields(logrus.Fields{
		"batches_queued": queued,
		"elapsed":        time.Since(start).Round(time.Millisecond),
	}).Info("update run finished")
	return errors.Join(dispatchErr, runErr)
}
