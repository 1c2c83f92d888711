package dag

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// GraphExport is a serialisable snapshot of a graph.
type GraphExport struct {
	Root  string       `json:"root"`
	Nodes []ExportNode `json:"nodes"`
	Edges []ExportEdge `json:"edges"`
}

// ExportNode is one node of a GraphExport.
type ExportNode struct {
	ID         string `json:"id"`
	Constraint string `json:"constraint,omitempty"`
	RequiredBy string `json:"required_by,omitempty"`
	// Version is the version the port's descriptor declares, when known.
	Version string `json:"version,omitempty"`
}

// ExportEdge is one edge of a GraphExport; To depends on From.
type ExportEdge struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Constraint string `json:"constraint,omitempty"`
}

// Export captures g in discovery order, with constraint labels.
func Export(g *Graph) GraphExport {
	ex := GraphExport{
		Root:  g.Root,
		Nodes: make([]ExportNode, 0, g.Len()),
		Edges: make([]ExportEdge, 0, len(g.edges)),
	}
	for _, n := range g.Nodes() {
		ex.Nodes = append(ex.Nodes, ExportNode{
			ID:         n.ID,
			Constraint: n.Constraint.String(),
			RequiredBy: n.RequiredBy,
		})
	}
	for _, e := range g.Edges() {
		ex.Edges = append(ex.Edges, ExportEdge{
			From:       e.From,
			To:         e.To,
			Constraint: g.EdgeConstraint(e.From, e.To).String(),
		})
	}
	return ex
}

// WriteJSON writes the snapshot as indented JSON.
func (ex GraphExport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ex)
}

// WriteDOT writes the snapshot as a Graphviz digraph. Arrows point from a
// dependent to its dependency.
func (ex GraphExport) WriteDOT(w io.Writer) error {
	var b strings.Builder
	b.WriteString("digraph ports {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, n := range ex.Nodes {
		label := n.ID
		if n.Version != "" {
			label += " " + n.Version
		}
		attrs := []string{"label=" + strconv.Quote(label)}
		if n.ID == ex.Root {
			attrs = append(attrs, "shape=doublecircle")
		}
		fmt.Fprintf(&b, "  %s [%s];\n", strconv.Quote(n.ID), strings.Join(attrs, ", "))
	}
	for _, e := range ex.Edges {
		fmt.Fprintf(&b, "  %s -> %s", strconv.Quote(e.To), strconv.Quote(e.From))
		if e.Constraint != "" {
			fmt.Fprintf(&b, " [label=%s]", strconv.Quote(e.Constraint))
		}
		b.WriteString(";\n")
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}
