// Package dag builds and orders port dependency graphs.
//
// Build expands a root port into its transitive dependency graph. An
// Edge{From, To} means To depends on From, so a node's indegree is its
// number of distinct dependencies and TopoSort emits dependencies first.
// DetectCycles must pass before a graph is ordered or scheduled.
//
//	g, err := dag.Build(ctx, "app", src, dag.BuildOptions{})
//	if err := dag.DetectCycles(g); err != nil {
//	    // err is a *dag.CycleError carrying the offending path
//	}
//	order, err := dag.TopoSort(g)
package dag
