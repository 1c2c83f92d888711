package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/eventlog"
	"github.com/kbukum/portforge/logger"
	"github.com/kbukum/portforge/observability"
	"github.com/kbukum/portforge/resilience"
)

// BuildFunc builds one port. A nil error means the port is built.
type BuildFunc func(ctx context.Context, id string) error

// ArtifactFunc reports whether a port's build output already exists.
type ArtifactFunc func(ctx context.Context, id string) (bool, error)

// Task is one dispatched port and its retry state.
type Task struct {
	Node        string
	Attempt     int
	MaxAttempts int
	// Backoff is the delay before the next attempt, zero before the first retry.
	Backoff time.Duration
	// Cached is set when the artifact was present and no build ran.
	Cached  bool
	Started time.Time
}

// completion is what a worker sends back to the control loop.
type completion struct {
	task     Task
	err      error
	duration time.Duration
}

// work runs one task to a terminal outcome. It is the only code that runs
// outside the control loop, and it touches no scheduler state except the
// event log and metrics.
func (s *Scheduler) work(ctx context.Context, r *run, task Task) completion {
	ctx, span := observability.StartSpan(ctx, observability.SpanBuild, trace.WithAttributes(
		attribute.String(observability.AttrPort, task.Node),
		attribute.String(observability.AttrRunID, r.id),
	))
	defer span.End()

	log := r.log.WithFields(logger.Fields(logger.FieldNode, task.Node))

	if s.artifact != nil {
		present, err := s.artifact(ctx, task.Node)
		switch {
		case err != nil:
			log.Warn("artifact check failed, building", logger.Fields(logger.FieldError, err.Error()))
		case present:
			log.Info("artifact present, skipping build")
			task.Cached = true
			return completion{task: task, duration: time.Since(task.Started)}
		}
	}

	err := resilience.RetryFunc(ctx, resilience.RetryConfig{
		MaxAttempts:    task.MaxAttempts,
		InitialBackoff: s.opts.BackoffBase,
		BackoffFactor:  2,
		// An attempt's own deadline is a failed attempt; only the run
		// ending stops retries.
		RetryIf: func(error) bool { return ctx.Err() == nil },
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			task.Backoff = backoff
			s.metrics.RecordRetry(ctx)
			log.Warn("build attempt failed", logger.Fields(
				logger.FieldAttempt, attempt,
				logger.FieldError, err.Error(),
				"backoff", backoff.String(),
			))
		},
	}, func(ctx context.Context, attempt int) error {
		task.Attempt = attempt
		r.record(eventlog.Event{
			Node:    task.Node,
			Status:  eventlog.StatusRunning,
			Attempt: attempt,
		})
		observability.SetSpanAttribute(ctx, observability.AttrAttempt, attempt)
		return s.build(ctx, task.Node)
	})
	if err != nil {
		observability.SetSpanError(ctx, err)
		err = errors.BuildFailed(task.Node, task.Attempt, err)
	}
	return completion{task: task, err: err, duration: time.Since(task.Started)}
}
