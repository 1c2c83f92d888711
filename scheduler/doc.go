// Package scheduler drives a resolved dependency graph to completion with a
// bounded number of concurrent build workers.
//
// A single control loop owns the ready queue and the working indegree
// counters. It admits a ready port only when the resource gate has headroom
// for one more worker, then waits for any worker to finish. Workers retry
// the build callback with exponential backoff and report back through a
// completion channel. The first failed port stops admission; ports already
// running finish and are recorded before Run returns.
//
//	s := scheduler.New(scheduler.Options{MaxConcurrency: 4, Retries: 2}, b.Build,
//	    scheduler.WithProbe(probe.NewSystem()),
//	    scheduler.WithEventLog(events),
//	)
//	res, err := s.Run(ctx, scheduler.Plan{Graph: g})
package scheduler
