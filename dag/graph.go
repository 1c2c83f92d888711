package dag

import (
	"slices"

	"github.com/kbukum/portforge/version"
)

// Edge represents a dependency: To depends on From.
type Edge struct {
	From string
	To   string
}

// Node is one port in the graph.
type Node struct {
	ID string
	// Constraint is the first version constraint declared on this port by
	// any dependent; RequiredBy names that dependent.
	Constraint version.Constraint
	RequiredBy string

	index        int
	dependencies []string
	dependents   []string
}

// Dependencies returns the distinct ports this node depends on, in
// declaration order.
func (n *Node) Dependencies() []string { return slices.Clone(n.dependencies) }

// Dependents returns the distinct ports depending on this node, in the order
// the edges were added.
func (n *Node) Dependents() []string { return slices.Clone(n.dependents) }

// Indegree is the number of distinct dependencies.
func (n *Node) Indegree() int { return len(n.dependencies) }

// Graph is a dependency graph built for one resolution request.
type Graph struct {
	Root string

	nodes  map[string]*Node
	order  []string
	edges  []Edge
	labels map[Edge]version.Constraint
}

// NewGraph creates an empty graph rooted at root. The root node is added.
func NewGraph(root string) *Graph {
	g := &Graph{
		Root:   root,
		nodes:  make(map[string]*Node),
		labels: make(map[Edge]version.Constraint),
	}
	if root != "" {
		g.AddNode(root)
	}
	return g
}

// AddNode returns the node for id, creating it if needed. The second result
// reports whether the node was created.
func (g *Graph) AddNode(id string) (*Node, bool) {
	if n, ok := g.nodes[id]; ok {
		return n, false
	}
	n := &Node{ID: id, index: len(g.order)}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n, true
}

// AddEdge records that to depends on from, creating either node if needed.
// It returns false when the edge already existed.
func (g *Graph) AddEdge(from, to string) bool {
	src, _ := g.AddNode(from)
	dst, _ := g.AddNode(to)
	e := Edge{From: from, To: to}
	if _, ok := g.labels[e]; ok {
		return false
	}
	g.labels[e] = version.Constraint{}
	g.edges = append(g.edges, e)
	dst.dependencies = append(dst.dependencies, from)
	src.dependents = append(src.dependents, to)
	return true
}

// LabelEdge attaches the constraint declared on an existing edge. The first
// non-empty label wins.
func (g *Graph) LabelEdge(from, to string, c version.Constraint) {
	e := Edge{From: from, To: to}
	if cur, ok := g.labels[e]; ok && cur.IsZero() {
		g.labels[e] = c
	}
}

// EdgeConstraint returns the constraint declared on an edge.
func (g *Graph) EdgeConstraint(from, to string) version.Constraint {
	return g.labels[Edge{From: from, To: to}]
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// IDs returns every node id in discovery order.
func (g *Graph) IDs() []string { return slices.Clone(g.order) }

// Nodes returns every node in discovery order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// Len is the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Indegrees returns a fresh working copy of every node's indegree.
func (g *Graph) Indegrees() map[string]int {
	out := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		out[id] = len(n.dependencies)
	}
	return out
}

// DiscoveryIndex returns the position of id in discovery order, or -1.
func (g *Graph) DiscoveryIndex(id string) int {
	if n, ok := g.nodes[id]; ok {
		return n.index
	}
	return -1
}
