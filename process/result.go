package process

import (
	"bytes"
	"time"
)

// Result holds the output and status of a completed subprocess.
type Result struct {
	// Stdout is the captured standard output, truncated to the last MaxCapture bytes.
	Stdout []byte
	// Stderr is the captured standard error, truncated to the last MaxCapture bytes.
	Stderr []byte
	// ExitCode is the process exit code. -1 if the process was killed.
	ExitCode int
	// Duration is how long the process ran.
	Duration time.Duration
}

// LastStderrLine returns the final non-empty line of stderr.
func (r *Result) LastStderrLine() string {
	if r == nil {
		return ""
	}
	lines := bytes.Split(bytes.TrimSpace(r.Stderr), []byte("\n"))
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}

// MaxCapture bounds how much of each stream Run keeps in memory. Builds can
// be very chatty; the full stream goes to Command.Output.
const MaxCapture = 64 * 1024

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.limit {
		t.buf = append(t.buf[:0], p[len(p)-t.limit:]...)
		return n, nil
	}
	if over := len(t.buf) + len(p) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) Bytes() []byte { return t.buf }
