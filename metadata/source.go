package metadata

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Category selects a dependency list.
type Category string

const (
	CategoryBuild Category = "build"
	CategoryRun   Category = "run"
	CategoryTest  Category = "test"
)

// DefaultCategories are the lists consulted when building a graph.
var DefaultCategories = []Category{CategoryBuild, CategoryRun}

// Deps holds the raw dependency tokens of one port.
type Deps struct {
	Build []string `yaml:"build" json:"build,omitempty"`
	Run   []string `yaml:"run" json:"run,omitempty"`
	Test  []string `yaml:"test" json:"test,omitempty"`
}

// Tokens returns the tokens of the given categories in category order.
func (d Deps) Tokens(categories ...Category) []string {
	var out []string
	for _, c := range categories {
		switch c {
		case CategoryBuild:
			out = append(out, d.Build...)
		case CategoryRun:
			out = append(out, d.Run...)
		case CategoryTest:
			out = append(out, d.Test...)
		}
	}
	return out
}

// Source reads the declared dependencies of a port. A port without a
// descriptor yields empty Deps and no error.
type Source interface {
	Dependencies(ctx context.Context, id string) (Deps, error)
}

// StaticSource serves dependencies from memory.
type StaticSource struct {
	mu   sync.RWMutex
	deps map[string]Deps
}

// NewStaticSource creates a StaticSource seeded with deps.
func NewStaticSource(deps map[string]Deps) *StaticSource {
	s := &StaticSource{deps: make(map[string]Deps, len(deps))}
	maps.Copy(s.deps, deps)
	return s
}

// Set replaces the dependencies of id.
func (s *StaticSource) Set(id string, d Deps) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps[id] = d
}

// Dependencies implements Source.
func (s *StaticSource) Dependencies(ctx context.Context, id string) (Deps, error) {
	if err := ctx.Err(); err != nil {
		return Deps{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.deps[id]
	return Deps{
		Build: slices.Clone(d.Build),
		Run:   slices.Clone(d.Run),
		Test:  slices.Clone(d.Test),
	}, nil
}
