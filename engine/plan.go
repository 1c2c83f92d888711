package engine

import (
	"github.com/kbukum/portforge/dag"
)

// Plan is a resolved build request.
type Plan struct {
	Root  string
	Graph *dag.Graph
	// Order lists every port with dependencies first.
	Order []string
	// Satisfied ports are installed at an acceptable version.
	Satisfied map[string]bool
	// Installed maps installed ports to their recorded version.
	Installed map[string]string
	// Upgrades lists installed ports rebuilt because their version violates
	// a constraint.
	Upgrades []string
}

// Pending returns the ports that will be built, in build order.
func (p *Plan) Pending() []string {
	out := make([]string, 0, len(p.Order))
	for _, id := range p.Order {
		if !p.Satisfied[id] {
			out = append(out, id)
		}
	}
	return out
}
