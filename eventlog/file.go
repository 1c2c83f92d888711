package eventlog

import (
	"bufio"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/logger"
)

// FileLog appends events to a JSON-lines file.
type FileLog struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// Open opens path for appending, creating it and its directory if needed.
func Open(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.IOError("create event log dir", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.IOError("open event log", path, err)
	}
	return &FileLog{path: path, f: f}, nil
}

// Path returns the log file path.
func (l *FileLog) Path() string { return l.path }

// Append implements Log. Each event is written with a single write call.
func (l *FileLog) Append(e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return errors.Internal("encode event").WithCause(err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return errors.IOError("append event", l.path, os.ErrClosed)
	}
	if _, err := l.f.Write(line); err != nil {
		return errors.IOError("append event", l.path, err)
	}
	return nil
}

// Close flushes and closes the file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	syncErr := l.f.Sync()
	closeErr := l.f.Close()
	l.f = nil
	if syncErr != nil {
		return errors.IOError("sync event log", l.path, syncErr)
	}
	if closeErr != nil {
		return errors.IOError("close event log", l.path, closeErr)
	}
	return nil
}

// maxLine bounds a single event line; error messages can be long.
const maxLine = 1 << 20

// ReadAll reads every event in path in append order. A missing file yields
// no events. Lines that do not decode, such as a torn final write, are
// skipped with a warning.
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.IOError("open event log", path, err)
	}
	defer f.Close()

	log := logger.Get("eventlog")
	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil || e.Node == "" {
			log.Warn("skipping unreadable event", logger.Fields("path", path, "line", lineNo))
			continue
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.IOError("read event log", path, err)
	}
	return events, nil
}
