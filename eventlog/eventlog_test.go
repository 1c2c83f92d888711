package eventlog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/portforge/errors"
)

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func ev(node string, status Status, sec int) Event {
	return Event{Node: node, Status: status, Time: t0.Add(time.Duration(sec) * time.Second), RunID: "run-1", Attempt: 1}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		s    Status
		want bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusBuilt, true},
		{StatusFailed, true},
		{StatusSimulated, true},
	}
	for _, tc := range tests {
		if got := tc.s.Terminal(); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.s, tc.want, got)
		}
	}
}

func TestMemoryLog(t *testing.T) {
	l := NewMemoryLog()
	_ = l.Append(ev("a", StatusRunning, 0))
	_ = l.Append(ev("a", StatusBuilt, 1))
	got := l.Events()
	if len(got) != 2 || got[1].Status != StatusBuilt {
		t.Fatalf("unexpected events %+v", got)
	}
	got[0].Node = "mutated"
	if l.Events()[0].Node != "a" {
		t.Error("Events should return a copy")
	}
}

func TestFileLogAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "events.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []Event{ev("a", StatusRunning, 0), ev("a", StatusFailed, 1)}
	want[1].Error = "exit status 2"
	for _, e := range want {
		if err := l.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	// reopening appends, never truncates
	l, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Append(ev("b", StatusBuilt, 2))
	_ = l.Close()

	got, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[1].Error != "exit status 2" || !got[1].Time.Equal(want[1].Time) {
		t.Errorf("unexpected round trip %+v", got[1])
	}
	if got[2].Node != "b" {
		t.Errorf("expected appended event last, got %+v", got[2])
	}
}

func TestFileLogAppendAfterClose(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Close()
	if err := l.Append(ev("a", StatusBuilt, 0)); !errors.IsCode(err, errors.ErrCodeIO) {
		t.Errorf("expected IO_ERROR, got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestFileLogConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				e := ev(fmt.Sprintf("n%d", w), StatusRunning, i)
				e.Attempt = i + 1
				if err := l.Append(e); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	_ = l.Close()

	got, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != workers*perWorker {
		t.Fatalf("expected %d events, got %d", workers*perWorker, len(got))
	}
	// per-writer order is preserved
	last := map[string]int{}
	for _, e := range got {
		if e.Attempt <= last[e.Node] {
			t.Fatalf("events of %s out of order", e.Node)
		}
		last[e.Node] = e.Attempt
	}
}

func TestReadAll(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		got, err := ReadAll(filepath.Join(dir, "absent.jsonl"))
		if err != nil || got != nil {
			t.Errorf("expected no events and no error, got %v, %v", got, err)
		}
	})

	t.Run("torn and blank lines skipped", func(t *testing.T) {
		path := filepath.Join(dir, "torn.jsonl")
		body := `{"node":"a","status":"running","time":"2026-10-01T12:00:00Z"}` + "\n\n" +
			`{"node":"a","status":"built","time":"2026-10-01T12:00:01Z"}` + "\n" +
			`{"node":"b","stat`
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := ReadAll(path)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[1].Status != StatusBuilt {
			t.Errorf("expected 2 readable events, got %+v", got)
		}
	})
}

func TestProject(t *testing.T) {
	sf := Project([]Event{
		ev("a", StatusRunning, 0),
		ev("b", StatusRunning, 1),
		ev("a", StatusFailed, 2),
		ev("a", StatusRunning, 3),
		ev("a", StatusBuilt, 4),
	})
	a := sf.Nodes["a"]
	if len(a.History) != 4 {
		t.Fatalf("expected 4 entries for a, got %d", len(a.History))
	}
	if a.Last.Status != StatusBuilt || !a.Last.Time.Equal(t0.Add(4*time.Second)) {
		t.Errorf("unexpected last %+v", a.Last)
	}
	if a.History[1].Status != StatusFailed {
		t.Errorf("history out of order: %+v", a.History)
	}
	if sf.Nodes["b"].Last.Status != StatusRunning {
		t.Errorf("unexpected b %+v", sf.Nodes["b"])
	}
}

func writeLog(t *testing.T, path string, events ...Event) {
	t.Helper()
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range events {
		if err := l.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCompactIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "events.jsonl")
	statusPath := filepath.Join(dir, "status", "status.json")
	writeLog(t, logPath,
		ev("zlib", StatusRunning, 0),
		ev("zlib", StatusBuilt, 1),
		ev("app", StatusRunning, 2),
		ev("app", StatusFailed, 3),
	)

	c := NewCompactor(logPath, statusPath)
	if err := c.Compact(); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(statusPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Compact(); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(statusPath)
	if !bytes.Equal(first, second) {
		t.Errorf("compaction not idempotent:\n%s\n---\n%s", first, second)
	}

	sf, err := LoadStatus(statusPath)
	if err != nil {
		t.Fatal(err)
	}
	if sf.Nodes["app"].Last.Status != StatusFailed || len(sf.Nodes["zlib"].History) != 2 {
		t.Errorf("unexpected status %+v", sf)
	}
	if _, err := os.Stat(c.LockPath()); !os.IsNotExist(err) {
		t.Error("lock file should be removed after compaction")
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "status", "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestCompactPicksUpNewEvents(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "events.jsonl")
	statusPath := filepath.Join(dir, "status.json")
	writeLog(t, logPath, ev("a", StatusRunning, 0))
	c := NewCompactor(logPath, statusPath)
	_ = c.Compact()
	writeLog(t, logPath, ev("a", StatusBuilt, 1))
	_ = c.Compact()

	sf, _ := LoadStatus(statusPath)
	if sf.Nodes["a"].Last.Status != StatusBuilt {
		t.Errorf("expected built, got %+v", sf.Nodes["a"].Last)
	}
}

func TestCompactRespectsLockFile(t *testing.T) {
	dir := t.TempDir()
	c := NewCompactor(filepath.Join(dir, "events.jsonl"), filepath.Join(dir, "status.json"))
	if err := os.WriteFile(c.LockPath(), []byte("123\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := c.Compact()
	if !errors.IsCode(err, errors.ErrCodeIO) {
		t.Fatalf("expected IO_ERROR while locked, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "status.json")); !os.IsNotExist(err) {
		t.Error("status must not be written while locked")
	}

	old := time.Now().Add(-2 * DefaultStaleLock)
	if err := os.Chtimes(c.LockPath(), old, old); err != nil {
		t.Fatal(err)
	}
	if err := c.Compact(); err != nil {
		t.Fatalf("expected stale lock to be replaced, got %v", err)
	}
}

func TestLoadStatusMissing(t *testing.T) {
	sf, err := LoadStatus(filepath.Join(t.TempDir(), "none.json"))
	if err != nil || len(sf.Nodes) != 0 {
		t.Errorf("expected empty status, got %+v, %v", sf, err)
	}
}

func TestCompactorRun(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "events.jsonl")
	statusPath := filepath.Join(dir, "status.json")
	writeLog(t, logPath, ev("a", StatusBuilt, 0))

	c := NewCompactor(logPath, statusPath)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.Trigger()
	c.Trigger() // coalesces

	deadline := time.Now().Add(5 * time.Second)
	for {
		sf, err := LoadStatus(statusPath)
		if err == nil && sf.Nodes["a"].Last.Status == StatusBuilt {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("status file never written")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWithCompactionTriggersOnTerminalEvents(t *testing.T) {
	c := NewCompactor(filepath.Join(t.TempDir(), "events.jsonl"), filepath.Join(t.TempDir(), "status.json"))
	mem := NewMemoryLog()
	l := WithCompaction(mem, c)

	if err := l.Append(ev("a", StatusRunning, 1)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-c.trigger:
		t.Fatal("expected no trigger for a running event")
	default:
	}

	if err := l.Append(ev("a", StatusBuilt, 2)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-c.trigger:
	default:
		t.Error("expected a trigger after a terminal event")
	}
	if len(mem.Events()) != 2 {
		t.Errorf("expected 2 events forwarded, got %d", len(mem.Events()))
	}
}
