package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/portforge/dag"
	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/eventlog"
	"github.com/kbukum/portforge/installed"
	"github.com/kbukum/portforge/logger"
	"github.com/kbukum/portforge/metadata"
	"github.com/kbukum/portforge/observability"
	"github.com/kbukum/portforge/scheduler"
)

// Options are the resolution policies.
type Options struct {
	// NoUpgrade fails resolution instead of rebuilding an installed port
	// whose version violates a constraint.
	NoUpgrade bool
	// IncludeTestDeps follows test-time dependencies too.
	IncludeTestDeps bool
	// SkipInstalledRoot treats an installed root as satisfied.
	SkipInstalledRoot bool
	// DryRun makes Build record simulated events instead of building.
	DryRun bool
}

// Engine resolves and builds ports.
type Engine struct {
	source    metadata.Source
	installed installed.Query
	scheduler *scheduler.Scheduler
	opts      Options
	events    eventlog.Log
	log       *logger.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventLog receives simulated events during dry runs. Real runs log
// through the scheduler's own event log.
func WithEventLog(l eventlog.Log) Option {
	return func(e *Engine) { e.events = l }
}

// WithLogger overrides the component logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine. q may be nil, in which case nothing is installed.
func New(src metadata.Source, q installed.Query, sched *scheduler.Scheduler, opts Options, options ...Option) *Engine {
	if q == nil {
		q = installed.NewStaticQuery(nil)
	}
	e := &Engine{
		source:    src,
		installed: q,
		scheduler: sched,
		opts:      opts,
		log:       logger.Get("engine"),
		now:       time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Categories returns the dependency categories resolution follows.
func (e *Engine) Categories() []metadata.Category {
	if e.opts.IncludeTestDeps {
		return []metadata.Category{metadata.CategoryBuild, metadata.CategoryRun, metadata.CategoryTest}
	}
	return metadata.DefaultCategories
}

// Graph builds and validates the dependency graph of root without
// consulting installed state.
func (e *Engine) Graph(ctx context.Context, root string) (*dag.Graph, []string, error) {
	g, err := dag.Build(ctx, root, e.source, dag.BuildOptions{
		Categories: e.Categories(),
		Logger:     e.log,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := dag.DetectCycles(g); err != nil {
		return nil, nil, err
	}
	order, err := dag.TopoSort(g)
	if err != nil {
		return nil, nil, err
	}
	return g, order, nil
}

// Resolve builds the plan for root.
func (e *Engine) Resolve(ctx context.Context, root string) (*Plan, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanResolve, trace.WithAttributes(
		attribute.String(observability.AttrPort, root),
	))
	defer span.End()

	g, order, err := e.Graph(ctx, root)
	if err != nil {
		observability.SetSpanError(ctx, err)
		return nil, err
	}

	plan := &Plan{
		Root:      root,
		Graph:     g,
		Order:     order,
		Satisfied: make(map[string]bool),
		Installed: make(map[string]string),
	}
	if err := e.markInstalled(ctx, plan); err != nil {
		observability.SetSpanError(ctx, err)
		return nil, err
	}

	e.log.Info("plan resolved", logger.Fields(
		logger.FieldNode, root,
		"nodes", g.Len(),
		"satisfied", len(plan.Satisfied),
		"upgrades", len(plan.Upgrades),
	))
	return plan, nil
}

// markInstalled consults the package database for every port in order.
func (e *Engine) markInstalled(ctx context.Context, plan *Plan) error {
	for _, id := range plan.Order {
		ok, ver, err := e.installed.Lookup(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		plan.Installed[id] = ver

		if id == plan.Root && !e.opts.SkipInstalledRoot {
			continue
		}

		node, _ := plan.Graph.Node(id)
		if node.Constraint.IsZero() || node.Constraint.Allows(ver) {
			plan.Satisfied[id] = true
			continue
		}

		if e.opts.NoUpgrade {
			return errors.UnsatisfiedConstraint(id, ver, node.Constraint.String(), node.RequiredBy)
		}
		plan.Upgrades = append(plan.Upgrades, id)
		e.log.Info("installed version violates constraint, rebuilding", logger.Fields(
			logger.FieldNode, id,
			"installed", ver,
			"constraint", node.Constraint.String(),
			"required_by", node.RequiredBy,
		))
	}
	return nil
}

// Build runs plan through the scheduler, or simulates it in dry-run mode.
func (e *Engine) Build(ctx context.Context, plan *Plan) (*scheduler.Result, error) {
	if e.opts.DryRun {
		return e.Simulate(ctx, plan)
	}
	if e.scheduler == nil {
		return nil, errors.Validation("engine has no scheduler")
	}
	return e.scheduler.Run(ctx, scheduler.Plan{Graph: plan.Graph, Satisfied: plan.Satisfied})
}

// Simulate records a simulated event for every pending port in build order
// without invoking any build.
func (e *Engine) Simulate(ctx context.Context, plan *Plan) (*scheduler.Result, error) {
	runID := uuid.NewString()
	memory := eventlog.NewMemoryLog()
	res := &scheduler.Result{RunID: runID}
	start := e.now()

	for _, id := range plan.Order {
		if plan.Satisfied[id] {
			res.Satisfied = append(res.Satisfied, id)
		}
	}

	for _, id := range plan.Pending() {
		if err := ctx.Err(); err != nil {
			res.Events = memory.Events()
			return res, err
		}
		ev := eventlog.Event{
			Node:   id,
			Status: eventlog.StatusSimulated,
			Time:   e.now().UTC(),
			RunID:  runID,
		}
		_ = memory.Append(ev)
		if e.events != nil {
			if err := e.events.Append(ev); err != nil {
				e.log.Error("appending event", logger.Fields(logger.FieldNode, id, logger.FieldError, err.Error()))
			}
		}
		res.Dispatched = append(res.Dispatched, id)
		e.log.Info("would build", logger.Fields(logger.FieldNode, id, logger.FieldRunID, runID))
	}

	res.Events = memory.Events()
	res.Duration = e.now().Sub(start)
	return res, nil
}

// Run resolves root and builds it.
func (e *Engine) Run(ctx context.Context, root string) (*Plan, *scheduler.Result, error) {
	plan, err := e.Resolve(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	res, err := e.Build(ctx, plan)
	return plan, res, err
}
