// Package engine resolves a root port into a build plan and drives it
// through the scheduler.
//
// Resolve builds the dependency graph, rejects cycles, orders it and checks
// every port against the installed package database. Installed ports whose
// version satisfies the constraint declared on them are marked satisfied and
// skipped. Ports that violate it are rebuilt, or fail the plan with
// UNSATISFIED_CONSTRAINT when upgrades are disabled.
//
//	e := engine.New(src, installed.NewDirQuery(dbDir), sched, engine.Options{})
//	plan, err := e.Resolve(ctx, "www/nginx")
//	res, err := e.Build(ctx, plan)
package engine
