package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/portforge/dag"
	"github.com/kbukum/portforge/logger"
	"github.com/kbukum/portforge/scheduler"
)

// workspace is a temp ports tree plus a config file pointing at it.
type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T, ports map[string]string, buildCommand string) *workspace {
	t.Helper()
	dir := t.TempDir()
	for id, descriptor := range ports {
		portDir := filepath.Join(dir, "ports", id)
		if err := os.MkdirAll(portDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(portDir, "port.yaml"), []byte(descriptor), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := fmt.Sprintf(`name: portforge
environment: development
logging:
  level: error
scheduler:
  max_concurrency: 2
  memory_floor: 1m
  load_per_cpu: 1000
  retries: 0
  gate_poll_interval: 10ms
paths:
  ports_dir: %[1]s/ports
  package_db: %[1]s/db
  event_log: %[1]s/log/events.jsonl
  status_file: %[1]s/log/status.json
build:
  command: ["sh", "-c", %[2]q]
`, dir, buildCommand)
	path := filepath.Join(dir, "portforge.yml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return &workspace{dir: dir, config: path}
}

func (w *workspace) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--config", w.config}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

var chain = map[string]string{
	"A": "depends:\n  run: [B]\n",
	"B": "depends:\n  build: [\"C>=1.0\"]\n",
	"C": "version: \"1.2\"\n",
}

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "portforge ") {
		t.Errorf("expected version line, got %q", stdout.String())
	}
}

func TestUsageErrors(t *testing.T) {
	w := newWorkspace(t, chain, "true")
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no command", nil, 2},
		{"unknown command", []string{"frobnicate"}, 2},
		{"missing port", []string{"order"}, 2},
		{"bad flag", []string{"order", "--nope", "A"}, 2},
		{"bad format", []string{"graph", "-f", "svg", "A"}, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code, _, _ := w.run(tc.args...); code != tc.code {
				t.Errorf("expected exit %d, got %d", tc.code, code)
			}
		})
	}
}

func TestOrder(t *testing.T) {
	w := newWorkspace(t, chain, "true")
	code, out, errOut := w.run("order", "A")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	if out != "C\nB\nA\n" {
		t.Errorf("expected C B A, got %q", out)
	}

	code, out, _ = w.run("order", "--levels", "A")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if out != "0: C\n1: B\n2: A\n" {
		t.Errorf("unexpected levels %q", out)
	}
}

func TestOrderPendingSkipsInstalled(t *testing.T) {
	w := newWorkspace(t, chain, "true")
	entry := filepath.Join(w.dir, "db", "C")
	if err := os.MkdirAll(entry, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(entry, "VERSION"), []byte("1.2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := w.run("order", "--pending", "A")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	if out != "B\nA\n" {
		t.Errorf("expected B A, got %q", out)
	}
}

func TestGraphJSON(t *testing.T) {
	w := newWorkspace(t, chain, "true")
	code, out, errOut := w.run("graph", "--format", "json", "A")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	var ex struct {
		Root  string `json:"root"`
		Nodes []struct {
			ID      string `json:"id"`
			Version string `json:"version"`
		} `json:"nodes"`
		Edges []json.RawMessage `json:"edges"`
	}
	if err := json.Unmarshal([]byte(out), &ex); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if ex.Root != "A" || len(ex.Nodes) != 3 || len(ex.Edges) != 2 {
		t.Errorf("unexpected export %+v", ex)
	}
	versions := make(map[string]string)
	for _, n := range ex.Nodes {
		versions[n.ID] = n.Version
	}
	if versions["C"] != "1.2" || versions["A"] != "" {
		t.Errorf("expected declared version 1.2 on C only, got %v", versions)
	}
}

func TestGraphDOT(t *testing.T) {
	w := newWorkspace(t, chain, "true")
	code, out, _ := w.run("graph", "A")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out, "digraph") {
		t.Errorf("expected DOT output, got %q", out)
	}
	if !strings.Contains(out, `"C" [label="C 1.2"]`) {
		t.Errorf("expected C labelled with its version, got %q", out)
	}
}

func TestCommandsUseConfiguredLoggers(t *testing.T) {
	w := newWorkspace(t, chain, "true")
	if code, _, errOut := w.run("order", "A"); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	for _, name := range components {
		if logger.Get(name) != logger.Get(name) {
			t.Errorf("expected a registered logger for %q", name)
		}
	}
}

func TestBuildAndStatus(t *testing.T) {
	w := newWorkspace(t, chain, "true")
	code, out, errOut := w.run("build", "A")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	if !strings.Contains(out, "built 3") {
		t.Errorf("expected 3 built, got %q", out)
	}

	if _, err := os.Stat(filepath.Join(w.dir, "log", "events.jsonl")); err != nil {
		t.Errorf("expected event log: %v", err)
	}
	code, out, errOut = w.run("status")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	for _, id := range []string{"A", "B", "C"} {
		if !strings.Contains(out, id) {
			t.Errorf("expected status for %s in %q", id, out)
		}
	}
	if strings.Count(out, "built") != 3 {
		t.Errorf("expected three built ports, got %q", out)
	}

	code, out, _ = w.run("status", "--json", "A")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, `"A"`) || strings.Contains(out, `"B"`) {
		t.Errorf("expected only A, got %q", out)
	}
}

func TestBuildFailure(t *testing.T) {
	w := newWorkspace(t, chain, "exit 1")
	code, out, _ := w.run("build", "A")
	if code != 4 {
		t.Fatalf("expected exit 4, got %d", code)
	}
	if !strings.Contains(out, "failed: C") {
		t.Errorf("expected C to fail, got %q", out)
	}
}

func TestBuildDryRun(t *testing.T) {
	w := newWorkspace(t, chain, "exit 1")
	code, out, errOut := w.run("--dry-run", "build", "A")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	if !strings.HasPrefix(out, "C\nB\nA\n") {
		t.Errorf("expected simulated order, got %q", out)
	}
}

func TestBuildCycle(t *testing.T) {
	w := newWorkspace(t, map[string]string{
		"A": "depends:\n  run: [B]\n",
		"B": "depends:\n  run: [A]\n",
	}, "true")
	code, _, errOut := w.run("build", "A")
	if code != 3 {
		t.Fatalf("expected exit 3, got %d", code)
	}
	if !strings.Contains(errOut, "A -> B -> A") {
		t.Errorf("expected cycle path, got %q", errOut)
	}
}

func TestCompact(t *testing.T) {
	w := newWorkspace(t, chain, "true")
	if code, _, errOut := w.run("compact"); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	if _, err := os.Stat(filepath.Join(w.dir, "log", "status.json")); err != nil {
		t.Errorf("expected status file: %v", err)
	}
}

func TestGateOptionsWithoutHostProbe(t *testing.T) {
	if opts := gateOptions(false, logger.NewNop()); len(opts) != 0 {
		t.Fatalf("expected no gate options, got %d", len(opts))
	}
	if opts := gateOptions(true, logger.NewNop()); len(opts) != 1 {
		t.Errorf("expected the host probe option, got %d", len(opts))
	}

	// A floor no host could meet must not hold admission when no probe is wired.
	g := dag.NewGraph("A")
	g.AddEdge("B", "A")
	built := 0
	s := scheduler.New(scheduler.Options{MaxConcurrency: 2, MemoryFloorMB: 1 << 40},
		func(context.Context, string) error { built++; return nil },
		append(gateOptions(false, logger.NewNop()), scheduler.WithLogger(logger.NewNop()))...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.Run(ctx, scheduler.Plan{Graph: g})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Built) != 2 || built != 2 {
		t.Errorf("expected 2 ports built, got %v", res.Built)
	}
}
