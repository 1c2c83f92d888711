package dag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/logger"
	"github.com/kbukum/portforge/metadata"
	"github.com/kbukum/portforge/version"
)

// --- test helpers ---

func build(t *testing.T, root string, deps map[string]metadata.Deps, opts ...BuildOptions) *Graph {
	t.Helper()
	var o BuildOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	g, err := Build(context.Background(), root, metadata.NewStaticSource(deps), o)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return g
}

func run(tokens ...string) metadata.Deps { return metadata.Deps{Run: tokens} }

func assertBefore(t *testing.T, order []string, first, second string) {
	t.Helper()
	i, j := slices.Index(order, first), slices.Index(order, second)
	if i < 0 || j < 0 || i >= j {
		t.Errorf("expected %s before %s in %v", first, second, order)
	}
}

// --- Build ---

func TestBuild_Chain(t *testing.T) {
	g := build(t, "A", map[string]metadata.Deps{
		"A": run("B"),
		"B": run("C"),
	})
	if got := g.IDs(); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("expected discovery order [A B C], got %v", got)
	}
	want := []Edge{{From: "B", To: "A"}, {From: "C", To: "B"}}
	if got := g.Edges(); !slices.Equal(got, want) {
		t.Errorf("expected edges %v, got %v", want, got)
	}
	a, _ := g.Node("A")
	if a.Indegree() != 1 || !slices.Equal(a.Dependencies(), []string{"B"}) {
		t.Errorf("unexpected A: indegree %d deps %v", a.Indegree(), a.Dependencies())
	}
	c, _ := g.Node("C")
	if c.Indegree() != 0 || !slices.Equal(c.Dependents(), []string{"B"}) {
		t.Errorf("unexpected C: indegree %d dependents %v", c.Indegree(), c.Dependents())
	}
}

func TestBuild_DuplicateEdgesAreIdempotent(t *testing.T) {
	g := build(t, "A", map[string]metadata.Deps{
		"A": {Build: []string{"B", "B>=1"}, Run: []string{"B"}},
	})
	if len(g.Edges()) != 1 {
		t.Fatalf("expected 1 edge, got %v", g.Edges())
	}
	a, _ := g.Node("A")
	if a.Indegree() != 1 {
		t.Errorf("expected indegree 1, got %d", a.Indegree())
	}
	if got := g.EdgeConstraint("B", "A"); got.String() != ">=1" {
		t.Errorf("expected edge label >=1, got %q", got.String())
	}
}

func TestBuild_SharedDependencyVisitedOnce(t *testing.T) {
	src := &countingSource{deps: map[string]metadata.Deps{
		"A": run("B", "C"),
		"B": run("D"),
		"C": run("D"),
	}}
	g, err := Build(context.Background(), "A", src, BuildOptions{Logger: logger.NewNop()})
	if err != nil {
		t.Fatal(err)
	}
	if g.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d", g.Len())
	}
	for id, n := range src.calls {
		if n != 1 {
			t.Errorf("expected %s read once, got %d", id, n)
		}
	}
	d, _ := g.Node("D")
	if !slices.Equal(d.Dependents(), []string{"B", "C"}) {
		t.Errorf("expected D dependents [B C], got %v", d.Dependents())
	}
}

func TestBuild_TerminatesOnCycle(t *testing.T) {
	g := build(t, "A", map[string]metadata.Deps{
		"A": run("B"),
		"B": run("C"),
		"C": run("A"),
	})
	if g.Len() != 3 || len(g.Edges()) != 3 {
		t.Errorf("expected 3 nodes and 3 edges, got %d and %d", g.Len(), len(g.Edges()))
	}
}

func TestBuild_SkipsMalformedTokens(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "warn", Format: "json"}, "test", &buf)
	g := build(t, "A", map[string]metadata.Deps{
		"A": run("B", "bad token", "C>=", "D"),
	}, BuildOptions{Logger: log})

	if got := g.IDs(); !slices.Equal(got, []string{"A", "B", "D"}) {
		t.Errorf("expected [A B D], got %v", got)
	}
	if n := strings.Count(buf.String(), "skipping malformed dependency token"); n != 2 {
		t.Errorf("expected 2 warnings, got %d: %s", n, buf.String())
	}
}

func TestBuild_FirstConstraintWins(t *testing.T) {
	g := build(t, "A", map[string]metadata.Deps{
		"A": run("B", "C"),
		"B": run("lib>=1.2"),
		"C": run("lib>=2.0"),
	})
	n, _ := g.Node("lib")
	if n.Constraint != (version.Constraint{Op: version.OpGE, Version: "1.2"}) {
		t.Errorf("expected >=1.2, got %q", n.Constraint.String())
	}
	if n.RequiredBy != "B" {
		t.Errorf("expected required by B, got %q", n.RequiredBy)
	}
	if got := g.EdgeConstraint("lib", "C").String(); got != ">=2.0" {
		t.Errorf("expected C's edge label >=2.0, got %q", got)
	}
}

func TestBuild_BareSightingDoesNotClaimConstraint(t *testing.T) {
	g := build(t, "A", map[string]metadata.Deps{
		"A": run("lib", "B"),
		"B": run("lib>=1.2"),
	})
	n, _ := g.Node("lib")
	if n.Constraint.String() != ">=1.2" || n.RequiredBy != "B" {
		t.Errorf("expected >=1.2 from B, got %q from %q", n.Constraint.String(), n.RequiredBy)
	}
}

func TestBuild_Categories(t *testing.T) {
	deps := map[string]metadata.Deps{
		"A": {Build: []string{"cmake"}, Run: []string{"libc"}, Test: []string{"check"}},
	}
	tests := []struct {
		name       string
		categories []metadata.Category
		want       []string
	}{
		{"default build and run", nil, []string{"A", "cmake", "libc"}},
		{"with test", []metadata.Category{metadata.CategoryBuild, metadata.CategoryRun, metadata.CategoryTest}, []string{"A", "cmake", "libc", "check"}},
		{"build only", []metadata.Category{metadata.CategoryBuild}, []string{"A", "cmake"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := build(t, "A", deps, BuildOptions{Categories: tc.categories})
			if got := g.IDs(); !slices.Equal(got, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	if _, err := Build(context.Background(), "", metadata.NewStaticSource(nil), BuildOptions{}); err == nil {
		t.Error("expected error for empty root")
	}

	src := &countingSource{fail: "B", deps: map[string]metadata.Deps{"A": run("B")}}
	_, err := Build(context.Background(), "A", src, BuildOptions{Logger: logger.NewNop()})
	if !errors.IsCode(err, errors.ErrCodeIO) {
		t.Errorf("expected IO_ERROR from source, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Build(ctx, "A", metadata.NewStaticSource(nil), BuildOptions{}); err == nil {
		t.Error("expected context error")
	}
}

type countingSource struct {
	deps  map[string]metadata.Deps
	calls map[string]int
	fail  string
}

func (s *countingSource) Dependencies(_ context.Context, id string) (metadata.Deps, error) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[id]++
	if id == s.fail {
		return metadata.Deps{}, errors.IOError("read descriptor", id, fmt.Errorf("boom"))
	}
	return s.deps[id], nil
}

// --- DetectCycles ---

func TestDetectCycles(t *testing.T) {
	tests := []struct {
		name     string
		deps     map[string]metadata.Deps
		wantPath []string
	}{
		{"acyclic", map[string]metadata.Deps{"A": run("B", "C"), "B": run("C")}, nil},
		{"three node cycle", map[string]metadata.Deps{"A": run("B"), "B": run("C"), "C": run("A")}, []string{"A", "B", "C", "A"}},
		{"self loop", map[string]metadata.Deps{"A": run("A")}, []string{"A", "A"}},
		{"cycle below root", map[string]metadata.Deps{"A": run("X", "B"), "B": run("C"), "C": run("B")}, []string{"B", "C", "B"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := build(t, "A", tc.deps)
			err := DetectCycles(g)
			if tc.wantPath == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *CycleError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CycleError, got %v", err)
			}
			if !slices.Equal(ce.Path, tc.wantPath) {
				t.Errorf("expected path %v, got %v", tc.wantPath, ce.Path)
			}
			if !errors.IsCode(err, errors.ErrCodeCycleDetected) {
				t.Errorf("expected CYCLE_DETECTED code, got %v", err)
			}
		})
	}
}

func TestCycleErrorMessage(t *testing.T) {
	err := &CycleError{Path: []string{"A", "B", "A"}}
	if !strings.Contains(err.Error(), "A -> B -> A") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

// --- TopoSort ---

func TestTopoSort_Chain(t *testing.T) {
	g := build(t, "A", map[string]metadata.Deps{"A": run("B"), "B": run("C")})
	order, err := TopoSort(g)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(order, []string{"C", "B", "A"}) {
		t.Errorf("expected [C B A], got %v", order)
	}
}

func TestTopoSort_TiesBreakByDiscovery(t *testing.T) {
	g := build(t, "A", map[string]metadata.Deps{
		"A": run("B", "C", "D"),
		"C": run("E"),
	})
	order, err := TopoSort(g)
	if err != nil {
		t.Fatal(err)
	}
	// discovery: A B C D E; ready initially: B D E
	want := []string{"B", "D", "E", "C", "A"}
	if !slices.Equal(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestTopoSort_CycleYieldsNoOrder(t *testing.T) {
	g := build(t, "A", map[string]metadata.Deps{"A": run("B"), "B": run("C"), "C": run("A")})
	order, err := TopoSort(g)
	if order != nil {
		t.Errorf("expected no order, got %v", order)
	}
	if !errors.IsCode(err, errors.ErrCodeCycleDetected) {
		t.Errorf("expected CYCLE_DETECTED, got %v", err)
	}
}

func TestTopoSort_RandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for iter := range 200 {
		n := 1 + rng.IntN(30)
		deps := make(map[string]metadata.Deps, n)
		name := func(i int) string { return fmt.Sprintf("p%02d", i) }
		for i := range n {
			var d []string
			for j := i + 1; j < n; j++ {
				if rng.IntN(4) == 0 {
					d = append(d, name(j))
				}
			}
			deps[name(i)] = run(d...)
		}
		// root depends on everything so every node is reachable
		var all []string
		for i := 1; i < n; i++ {
			all = append(all, name(i))
		}
		deps[name(0)] = run(append(deps[name(0)].Run, all...)...)

		g := build(t, name(0), deps)
		if err := DetectCycles(g); err != nil {
			t.Fatalf("iteration %d: unexpected cycle: %v", iter, err)
		}
		order, err := TopoSort(g)
		if err != nil {
			t.Fatalf("iteration %d: %v", iter, err)
		}
		if len(order) != g.Len() {
			t.Fatalf("iteration %d: expected %d nodes, got %d", iter, g.Len(), len(order))
		}
		pos := make(map[string]int, len(order))
		for i, id := range order {
			if _, dup := pos[id]; dup {
				t.Fatalf("iteration %d: %s emitted twice", iter, id)
			}
			pos[id] = i
		}
		for _, e := range g.Edges() {
			if pos[e.From] >= pos[e.To] {
				t.Fatalf("iteration %d: dependency %s after dependent %s", iter, e.From, e.To)
			}
		}
	}
}

// --- Levels ---

func TestLevels_Diamond(t *testing.T) {
	g := build(t, "D", map[string]metadata.Deps{
		"D": run("B", "C"),
		"B": run("A"),
		"C": run("A"),
	})
	levels, err := Levels(g)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"A"}, {"B", "C"}, {"D"}}
	if len(levels) != len(want) {
		t.Fatalf("expected %v, got %v", want, levels)
	}
	for i := range want {
		if !slices.Equal(levels[i], want[i]) {
			t.Errorf("level %d: expected %v, got %v", i, want[i], levels[i])
		}
	}
}

func TestLevels_Cycle(t *testing.T) {
	g := build(t, "A", map[string]metadata.Deps{"A": run("B"), "B": run("A")})
	if _, err := Levels(g); !errors.IsCode(err, errors.ErrCodeCycleDetected) {
		t.Errorf("expected CYCLE_DETECTED, got %v", err)
	}
}

// --- Export ---

func TestExport(t *testing.T) {
	g := build(t, "app", map[string]metadata.Deps{
		"app": {Build: []string{"cmake"}, Run: []string{"libfoo>=1.2"}},
	})
	ex := Export(g)

	var buf bytes.Buffer
	if err := ex.WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}
	var decoded GraphExport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Root != "app" || len(decoded.Nodes) != 3 || len(decoded.Edges) != 2 {
		t.Fatalf("unexpected export %+v", decoded)
	}
	if decoded.Nodes[2].ID != "libfoo" || decoded.Nodes[2].Constraint != ">=1.2" || decoded.Nodes[2].RequiredBy != "app" {
		t.Errorf("unexpected libfoo node %+v", decoded.Nodes[2])
	}

	buf.Reset()
	if err := ex.WriteDOT(&buf); err != nil {
		t.Fatal(err)
	}
	dot := buf.String()
	for _, want := range []string{
		"digraph ports {",
		`"app" [label="app", shape=doublecircle];`,
		`"app" -> "cmake";`,
		`"app" -> "libfoo" [label=">=1.2"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("expected %q in DOT output:\n%s", want, dot)
		}
	}
}
