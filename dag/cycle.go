package dag

import (
	"strings"

	"github.com/kbukum/portforge/errors"
)

// CycleError reports a circular dependency. Path starts and ends with the
// same node and follows dependent -> dependency edges.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dag: circular dependency: " + strings.Join(e.Path, " -> ")
}

// Unwrap exposes the CYCLE_DETECTED AppError.
func (e *CycleError) Unwrap() error { return errors.CycleDetected(e.Path) }

const (
	white = iota
	gray
	black
)

// DetectCycles runs a three-colour DFS from every node in discovery order,
// root first, and returns a *CycleError for the first cycle found.
func DetectCycles(g *Graph) error {
	color := make(map[string]int, g.Len())
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range g.nodes[id].dependencies {
			switch color[dep] {
			case gray:
				start := len(stack) - 1
				for stack[start] != dep {
					start--
				}
				path := make([]string, 0, len(stack)-start+1)
				path = append(path, stack[start:]...)
				return append(path, dep)
			case white:
				if path := visit(dep); path != nil {
					return path
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range g.order {
		if color[id] != white {
			continue
		}
		if path := visit(id); path != nil {
			return &CycleError{Path: path}
		}
	}
	return nil
}
