package dag

import (
	"context"
	"fmt"

	"github.com/kbukum/portforge/logger"
	"github.com/kbukum/portforge/metadata"
)

// BuildOptions controls graph expansion.
type BuildOptions struct {
	// Categories lists the dependency categories to follow.
	// Defaults to metadata.DefaultCategories.
	Categories []metadata.Category
	// Logger receives malformed-token warnings. Defaults to logger.Get("dag").
	Logger *logger.Logger
}

// Build expands root into its transitive dependency graph. Every port is
// read from src exactly once; a visited set guarantees termination even when
// the dependencies form a cycle, which is left for DetectCycles to report.
// Malformed tokens are logged and skipped.
func Build(ctx context.Context, root string, src metadata.Source, opts BuildOptions) (*Graph, error) {
	if root == "" {
		return nil, fmt.Errorf("dag: empty root")
	}
	categories := opts.Categories
	if len(categories) == 0 {
		categories = metadata.DefaultCategories
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get("dag")
	}

	g := NewGraph(root)
	worklist := []string{root}

	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := worklist[0]
		worklist = worklist[1:]

		deps, err := src.Dependencies(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("dag: reading dependencies of %q: %w", id, err)
		}

		for _, token := range deps.Tokens(categories...) {
			ref, err := metadata.ParseToken(token)
			if err != nil {
				log.Warn("skipping malformed dependency token", logger.Fields(
					logger.FieldNode, id,
					logger.FieldToken, token,
					logger.FieldError, err.Error(),
				))
				continue
			}

			if _, created := g.AddNode(ref.Target); created {
				worklist = append(worklist, ref.Target)
			}
			g.AddEdge(ref.Target, id)
			if ref.Constraint.IsZero() {
				continue
			}
			g.LabelEdge(ref.Target, id, ref.Constraint)
			recordConstraint(g, ref, id, log)
		}
	}

	log.Debug("graph built", logger.Fields(
		logger.FieldNode, root,
		"nodes", g.Len(),
		"edges", len(g.edges),
	))
	return g, nil
}

// recordConstraint keeps the first constraint declared on a target.
func recordConstraint(g *Graph, ref metadata.Reference, requiredBy string, log *logger.Logger) {
	n, _ := g.Node(ref.Target)
	if n.Constraint.IsZero() {
		n.Constraint = ref.Constraint
		n.RequiredBy = requiredBy
		return
	}
	if n.Constraint != ref.Constraint {
		log.Debug("ignoring conflicting constraint", logger.Fields(
			logger.FieldNode, ref.Target,
			"kept", n.Constraint.String(),
			"kept_from", n.RequiredBy,
			"ignored", ref.Constraint.String(),
			"ignored_from", requiredBy,
		))
	}
}
