package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/logger"
)

// Entry is one transition in a node's history.
type Entry struct {
	Status  Status    `json:"status"`
	Time    time.Time `json:"time"`
	RunID   string    `json:"run_id,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Record is the compacted view of one node.
type Record struct {
	Last    Entry   `json:"last"`
	History []Entry `json:"history"`
}

// StatusFile is the content of the status file, keyed by node id.
type StatusFile struct {
	Nodes map[string]Record `json:"nodes"`
}

// Project folds events into per-node records, keeping log order.
func Project(events []Event) StatusFile {
	sf := StatusFile{Nodes: make(map[string]Record)}
	for _, e := range events {
		entry := Entry{Status: e.Status, Time: e.Time, RunID: e.RunID, Attempt: e.Attempt, Error: e.Error}
		r := sf.Nodes[e.Node]
		r.History = append(r.History, entry)
		r.Last = entry
		sf.Nodes[e.Node] = r
	}
	return sf
}

// LoadStatus reads a status file. A missing file yields an empty view.
func LoadStatus(path string) (StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return StatusFile{Nodes: map[string]Record{}}, nil
		}
		return StatusFile{}, errors.IOError("read status", path, err)
	}
	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return StatusFile{}, errors.IOError("decode status", path, err)
	}
	if sf.Nodes == nil {
		sf.Nodes = map[string]Record{}
	}
	return sf, nil
}

// DefaultStaleLock is how old a lock file must be before it is presumed
// abandoned by a crashed process.
const DefaultStaleLock = 10 * time.Minute

// Compactor rebuilds the status file from the event log. Compactions never
// overlap: an in-process mutex serialises callers and a lock file next to
// the status file excludes other processes.
type Compactor struct {
	logPath    string
	statusPath string
	staleLock  time.Duration
	mu         sync.Mutex
	trigger    chan struct{}
	log        *logger.Logger
}

// NewCompactor creates a Compactor projecting logPath into statusPath.
func NewCompactor(logPath, statusPath string) *Compactor {
	return &Compactor{
		logPath:    logPath,
		statusPath: statusPath,
		staleLock:  DefaultStaleLock,
		trigger:    make(chan struct{}, 1),
		log:        logger.Get("compactor"),
	}
}

// LockPath is the cross-process lock file.
func (c *Compactor) LockPath() string { return c.statusPath + ".lock" }

// Compact rebuilds the status file. Running it twice over the same log
// produces identical output.
func (c *Compactor) Compact() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	events, err := ReadAll(c.logPath)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(Project(events), "", "  ")
	if err != nil {
		return errors.Internal("encode status").WithCause(err)
	}
	data = append(data, '\n')
	if err := writeAtomic(c.statusPath, data); err != nil {
		return err
	}
	c.log.Debug("status compacted", logger.Fields("events", len(events), "path", c.statusPath))
	return nil
}

// Trigger requests a compaction from Run. Requests made while one is
// pending coalesce.
func (c *Compactor) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run compacts on every Trigger until ctx is done. Failures are logged and
// do not stop the loop.
func (c *Compactor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.trigger:
			if err := c.Compact(); err != nil {
				c.log.Warn("compaction failed", logger.ErrorFields("compact", err))
			}
		}
	}
}

func (c *Compactor) acquire() (func(), error) {
	lock := c.LockPath()
	if err := os.MkdirAll(filepath.Dir(lock), 0o755); err != nil {
		return nil, errors.IOError("create status dir", filepath.Dir(lock), err)
	}
	for range 2 {
		f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { _ = os.Remove(lock) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, errors.IOError("create lock", lock, err)
		}
		info, statErr := os.Stat(lock)
		if statErr != nil || time.Since(info.ModTime()) < c.staleLock {
			break
		}
		c.log.Warn("removing stale compaction lock", logger.Fields("path", lock))
		_ = os.Remove(lock)
	}
	return nil, errors.New(errors.ErrCodeIO, "compaction already in progress").
		WithDetail("lock", lock)
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.IOError("create temp status", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return errors.IOError("write temp status", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return errors.IOError("sync temp status", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.IOError("close temp status", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return errors.IOError("replace status", path, err)
	}
	return nil
}

// compactingLog triggers a compaction after every terminal event.
type compactingLog struct {
	Log
	c *Compactor
}

// WithCompaction wraps l so each terminal event appended to it triggers c.
// Pair it with a running c.Run to keep the status file current during a run.
func WithCompaction(l Log, c *Compactor) Log {
	return &compactingLog{Log: l, c: c}
}

func (l *compactingLog) Append(e Event) error {
	if err := l.Log.Append(e); err != nil {
		return err
	}
	if e.Status.Terminal() {
		l.c.Trigger()
	}
	return nil
}
