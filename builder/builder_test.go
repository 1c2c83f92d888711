package builder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/portforge/config"
	"github.com/kbukum/portforge/errors"
)

func TestNewRejectsEmptyCommand(t *testing.T) {
	_, err := New(config.BuildConfig{}, "ports")
	if !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestExpand(t *testing.T) {
	c, err := New(config.BuildConfig{Command: []string{"make", "-C", "{portdir}", "PORT={port}"}}, "/usr/ports")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := c.Expand("devel/libfoo")
	want := []string{"make", "-C", filepath.Join("/usr/ports", "devel", "libfoo"), "PORT=devel/libfoo"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBuildRunsCommand(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	var out bytes.Buffer
	c, err := New(config.BuildConfig{
		Command: []string{"sh", "-c", "echo building $PORTFORGE_PORT in {portdir}"},
	}, dir, WithLogDir(logDir), WithOutput(&out))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.Build(context.Background(), "libfoo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "building libfoo") {
		t.Errorf("expected output to mention libfoo, got %q", out.String())
	}
	data, err := os.ReadFile(filepath.Join(logDir, "libfoo.log"))
	if err != nil {
		t.Fatalf("reading build log: %v", err)
	}
	if !strings.Contains(string(data), filepath.Join(dir, "libfoo")) {
		t.Errorf("expected log to contain port dir, got %q", data)
	}
}

func TestBuildFailure(t *testing.T) {
	c, err := New(config.BuildConfig{Command: []string{"sh", "-c", "echo nope >&2; exit 3"}}, t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = c.Build(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestBuildTimeout(t *testing.T) {
	c, err := New(config.BuildConfig{
		Command: []string{"sleep", "10"},
		Timeout: 50 * time.Millisecond,
	}, t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start := time.Now()
	if err := c.Build(context.Background(), "x"); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 8*time.Second {
		t.Errorf("timeout not enforced")
	}
}

func TestArtifactPresent(t *testing.T) {
	dir := t.TempDir()
	a := NewArtifact(dir, "{port}.pkg")
	ctx := context.Background()

	ok, err := a.Present(ctx, "libfoo")
	if err != nil || ok {
		t.Fatalf("expected absent, got %v %v", ok, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "libfoo.pkg"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err = a.Present(ctx, "libfoo")
	if err != nil || !ok {
		t.Errorf("expected present, got %v %v", ok, err)
	}

	empty := NewArtifact(dir, "")
	if ok, _ := empty.Present(ctx, "libfoo"); ok {
		t.Error("expected no artifact check without a pattern")
	}
}
