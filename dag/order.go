package dag

import (
	"cmp"
	"container/heap"
	"slices"

	"github.com/kbukum/portforge/errors"
)

// TopoSort orders the graph with Kahn's algorithm so every dependency
// precedes its dependents. Nodes ready at the same time are emitted in
// discovery order. A graph that still has unemitted nodes is cyclic and
// yields a CYCLE_DETECTED error; no partial order is returned.
func TopoSort(g *Graph) ([]string, error) {
	indegree := g.Indegrees()
	ready := &discoveryQueue{g: g}
	for _, id := range g.order {
		if indegree[id] == 0 {
			heap.Push(ready, id)
		}
	}

	order := make([]string, 0, g.Len())
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		order = append(order, id)
		for _, dependent := range g.nodes[id].dependents {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				heap.Push(ready, dependent)
			}
		}
	}

	if len(order) != g.Len() {
		return nil, cycleFromRemainder(g, indegree)
	}
	return order, nil
}

// Levels groups nodes into batches whose members depend only on earlier
// batches. Members of one batch can build in parallel.
func Levels(g *Graph) ([][]string, error) {
	indegree := g.Indegrees()
	var level []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			level = append(level, id)
		}
	}

	var levels [][]string
	visited := 0
	for len(level) > 0 {
		levels = append(levels, level)
		visited += len(level)

		var next []string
		for _, id := range level {
			for _, dependent := range g.nodes[id].dependents {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sortByDiscovery(g, next)
		level = next
	}

	if visited != g.Len() {
		return nil, cycleFromRemainder(g, indegree)
	}
	return levels, nil
}

func cycleFromRemainder(g *Graph, indegree map[string]int) error {
	if err := DetectCycles(g); err != nil {
		return err
	}
	var remaining []string
	for _, id := range g.order {
		if indegree[id] > 0 {
			remaining = append(remaining, id)
		}
	}
	return errors.CycleDetected(remaining)
}

func sortByDiscovery(g *Graph, ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Compare(g.DiscoveryIndex(a), g.DiscoveryIndex(b))
	})
}

// discoveryQueue is a min-heap of node ids keyed by discovery index.
type discoveryQueue struct {
	g   *Graph
	ids []string
}

func (q *discoveryQueue) Len() int { return len(q.ids) }
func (q *discoveryQueue) Less(i, j int) bool {
	return q.g.DiscoveryIndex(q.ids[i]) < q.g.DiscoveryIndex(q.ids[j])
}
func (q *discoveryQueue) Swap(i, j int) { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }
func (q *discoveryQueue) Push(x any)    { q.ids = append(q.ids, x.(string)) }
func (q *discoveryQueue) Pop() any {
	old := q.ids
	n := len(old)
	x := old[n-1]
	q.ids = old[:n-1]
	return x
}
