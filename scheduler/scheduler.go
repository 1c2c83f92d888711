package scheduler

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/portforge/dag"
	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/eventlog"
	"github.com/kbukum/portforge/logger"
	"github.com/kbukum/portforge/observability"
	"github.com/kbukum/portforge/probe"
)

// Options are the admission and retry limits of a run.
type Options struct {
	// MaxConcurrency is the most workers running at once. Values below 1 mean 1.
	MaxConcurrency int
	// MemoryFloorMB is the free memory each running worker needs.
	MemoryFloorMB uint64
	// MinFreeMemoryMB is an absolute free-memory ceiling. Zero disables it.
	MinFreeMemoryMB uint64
	// LoadPerCPU is the highest load average per CPU that admits work. Zero disables it.
	LoadPerCPU float64
	// Retries is the number of attempts after the first.
	Retries int
	// BackoffBase is the delay before the first retry; later delays double.
	BackoffBase time.Duration
	// GatePollInterval is how long to wait before re-checking a closed gate.
	GatePollInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = 1
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.GatePollInterval <= 0 {
		o.GatePollInterval = 2 * time.Second
	}
}

// Plan is what Run drives to completion.
type Plan struct {
	Graph *dag.Graph
	// Satisfied ports are treated as built and never dispatched.
	Satisfied map[string]bool
}

// Result summarises a run.
type Result struct {
	RunID string
	// Dispatched lists ports in dispatch order.
	Dispatched []string
	Built      []string
	Cached     []string
	Failed     []string
	Satisfied  []string
	// Events is every event recorded during the run, in append order.
	Events   []eventlog.Event
	Duration time.Duration
}

// Scheduler runs plans. A Scheduler may run several plans in sequence but
// each Run is independent.
type Scheduler struct {
	opts     Options
	build    BuildFunc
	artifact ArtifactFunc
	probe    probe.Probe
	events   eventlog.Log
	metrics  *observability.BuildMetrics
	log      *logger.Logger
	runID    string
	now      func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithProbe gates admission on host resources. Without a probe the gate is
// always open.
func WithProbe(p probe.Probe) Option {
	return func(s *Scheduler) { s.probe = p }
}

// WithArtifactCheck skips the build callback for ports whose artifact exists.
func WithArtifactCheck(fn ArtifactFunc) Option {
	return func(s *Scheduler) { s.artifact = fn }
}

// WithEventLog appends every event to l as well as to Result.Events.
func WithEventLog(l eventlog.Log) Option {
	return func(s *Scheduler) { s.events = l }
}

// WithMetrics records build metrics on m.
func WithMetrics(m *observability.BuildMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger overrides the component logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithRunID fixes the run id instead of generating one per Run.
func WithRunID(id string) Option {
	return func(s *Scheduler) { s.runID = id }
}

// New creates a Scheduler that builds ports with build.
func New(opts Options, build BuildFunc, options ...Option) *Scheduler {
	opts.applyDefaults()
	s := &Scheduler{
		opts:  opts,
		build: build,
		log:   logger.Get("scheduler"),
		now:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.metrics == nil {
		m, err := observability.NewBuildMetrics(observability.Meter(observability.InstrumentationName))
		if err != nil {
			s.log.Warn("build metrics unavailable", logger.Fields(logger.FieldError, err.Error()))
		}
		s.metrics = m
	}
	return s
}

// run is the state of one Run call. Fields other than the event sink are
// owned by the control loop.
type run struct {
	id     string
	log    *logger.Logger
	sink   eventlog.Log
	memory *eventlog.MemoryLog
	now    func() time.Time

	remaining map[string]int
	ready     []string
	inFlight  map[string]Task
	done      map[string]bool
}

// record stamps and appends an event. Safe for concurrent use.
func (r *run) record(e eventlog.Event) {
	e.RunID = r.id
	if e.Time.IsZero() {
		e.Time = r.now().UTC()
	}
	_ = r.memory.Append(e)
	if r.sink == nil {
		return
	}
	if err := r.sink.Append(e); err != nil {
		r.log.Error("appending event", logger.Fields(
			logger.FieldNode, e.Node,
			logger.FieldStatus, string(e.Status),
			logger.FieldError, err.Error(),
		))
	}
}

// Run drives every port of plan to built, or stops admitting at the first
// failure and returns a BUILD_FAILED error once running workers finish.
// The Result is returned in every case with the events recorded so far.
func (s *Scheduler) Run(ctx context.Context, plan Plan) (*Result, error) {
	if plan.Graph == nil {
		return nil, errors.Validation("plan has no graph")
	}
	if s.build == nil {
		return nil, errors.Validation("scheduler has no build function")
	}

	start := s.now()
	runID := s.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	r := &run{
		id:        runID,
		log:       s.log.WithFields(logger.Fields(logger.FieldRunID, runID)),
		sink:      s.events,
		memory:    eventlog.NewMemoryLog(),
		now:       s.now,
		remaining: plan.Graph.Indegrees(),
		inFlight:  make(map[string]Task),
		done:      make(map[string]bool),
	}
	res := &Result{RunID: runID}
	g := plan.Graph

	for _, id := range g.IDs() {
		if plan.Satisfied[id] {
			r.done[id] = true
			res.Satisfied = append(res.Satisfied, id)
			s.release(g, r, id, false)
		}
	}
	for _, id := range g.IDs() {
		if !r.done[id] && r.remaining[id] == 0 {
			s.enqueue(r, id)
		}
	}

	r.log.Info("run started", logger.Fields(
		"nodes", g.Len(),
		"satisfied", len(res.Satisfied),
		logger.FieldReady, len(r.ready),
		"max_concurrency", s.opts.MaxConcurrency,
	))

	gt := gate{
		probe:      s.probe,
		floorMB:    s.opts.MemoryFloorMB,
		minFreeMB:  s.opts.MinFreeMemoryMB,
		loadPerCPU: s.opts.LoadPerCPU,
	}
	completions := make(chan completion, s.opts.MaxConcurrency)
	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	var (
		firstErr error
		stopped  bool
		ctxDone  = ctx.Done()
	)

	for {
		if firstErr == nil && ctx.Err() != nil {
			firstErr = ctx.Err()
			stopped = true
			ctxDone = nil
			cancelWork()
		}

		gateClosed := false
		for !stopped && len(r.inFlight) < s.opts.MaxConcurrency && len(r.ready) > 0 {
			v := gt.check(ctx, len(r.inFlight)+1)
			if !v.open {
				gateClosed = true
				s.rejected(ctx, r, v)
				break
			}
			id := r.ready[0]
			r.ready = r.ready[1:]
			task := Task{Node: id, MaxAttempts: s.opts.Retries + 1, Started: s.now()}
			r.inFlight[id] = task
			res.Dispatched = append(res.Dispatched, id)
			s.metrics.RecordDispatch(ctx)
			r.log.Debug("dispatched", logger.Fields(logger.FieldNode, id, logger.FieldInFlight, len(r.inFlight)))
			go func(t Task) {
				completions <- s.work(workCtx, r, t)
			}(task)
		}

		if len(r.inFlight) == 0 {
			if stopped || len(r.ready) == 0 {
				break
			}
			// Nothing running and the gate is shut: wait and re-poll.
			if !s.wait(ctx, s.opts.GatePollInterval) {
				stopped = true
				firstErr = ctx.Err()
			}
			continue
		}

		var (
			poll  <-chan time.Time
			timer *time.Timer
		)
		if gateClosed && !stopped {
			timer = time.NewTimer(s.opts.GatePollInterval)
			poll = timer.C
		}

		select {
		case c := <-completions:
			if err := s.complete(ctx, g, r, res, c); err != nil && firstErr == nil {
				firstErr = err
				stopped = true
				r.log.Error("build failed, draining running workers", logger.Fields(
					logger.FieldNode, c.task.Node,
					logger.FieldInFlight, len(r.inFlight),
					logger.FieldError, err.Error(),
				))
			}
		case <-poll:
		case <-ctxDone:
			ctxDone = nil
			stopped = true
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			cancelWork()
			r.log.Warn("run cancelled, draining running workers", logger.Fields(logger.FieldInFlight, len(r.inFlight)))
		}
		if timer != nil {
			timer.Stop()
		}
	}

	res.Events = r.memory.Events()
	res.Duration = s.now().Sub(start)

	if firstErr != nil {
		return res, firstErr
	}
	if len(r.done) != g.Len() {
		var unbuilt []string
		for _, id := range g.IDs() {
			if !r.done[id] {
				unbuilt = append(unbuilt, id)
			}
		}
		return res, errors.Internal("scheduler stalled with unbuilt ports").WithDetail("nodes", unbuilt)
	}

	r.log.Info("run finished", logger.Fields(
		"built", len(res.Built),
		"cached", len(res.Cached),
		logger.FieldDuration, res.Duration.Milliseconds(),
	))
	return res, nil
}

// complete records a worker's outcome and, on success, releases its dependents.
func (s *Scheduler) complete(ctx context.Context, g *dag.Graph, r *run, res *Result, c completion) error {
	id := c.task.Node
	delete(r.inFlight, id)

	if c.err != nil {
		s.metrics.RecordCompletion(ctx, string(eventlog.StatusFailed), c.duration)
		r.record(eventlog.Event{Node: id, Status: eventlog.StatusFailed, Attempt: c.task.Attempt, Error: c.err.Error()})
		res.Failed = append(res.Failed, id)
		return c.err
	}

	s.metrics.RecordCompletion(ctx, string(eventlog.StatusBuilt), c.duration)
	r.record(eventlog.Event{Node: id, Status: eventlog.StatusBuilt, Attempt: c.task.Attempt})
	r.done[id] = true
	if c.task.Cached {
		res.Cached = append(res.Cached, id)
	} else {
		res.Built = append(res.Built, id)
	}
	r.log.Info("built", logger.Fields(
		logger.FieldNode, id,
		logger.FieldAttempt, c.task.Attempt,
		logger.FieldDuration, c.duration.Milliseconds(),
	))
	s.release(g, r, id, true)
	return nil
}

// release decrements the dependents of a finished port and queues those that
// reach zero. Dependents are visited in edge insertion order.
func (s *Scheduler) release(g *dag.Graph, r *run, id string, queue bool) {
	n, ok := g.Node(id)
	if !ok {
		return
	}
	for _, dep := range n.Dependents() {
		r.remaining[dep]--
		if queue && r.remaining[dep] == 0 && !r.done[dep] {
			s.enqueue(r, dep)
		}
	}
}

func (s *Scheduler) enqueue(r *run, id string) {
	if slices.Contains(r.ready, id) {
		return
	}
	r.ready = append(r.ready, id)
	r.record(eventlog.Event{Node: id, Status: eventlog.StatusQueued})
}

func (s *Scheduler) rejected(ctx context.Context, r *run, v verdict) {
	s.metrics.RecordGateRejection(ctx, v.reason)
	fields := logger.Fields("reason", v.reason, logger.FieldInFlight, len(r.inFlight), logger.FieldReady, len(r.ready))
	if v.err != nil {
		fields[logger.FieldError] = v.err.Error()
		r.log.Warn("resource probe failed, holding admission", fields)
		return
	}
	fields["detail"] = v.detail
	r.log.Debug("resource gate closed", fields)
}

// wait sleeps for d or until ctx is done. It reports false on cancellation.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
