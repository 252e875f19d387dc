package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const DefaultMaxSize = 2 * 1024 * 1024 // 2MB

var debug atomic.Bool

// RotatingWriter appends to a log file and keeps at most one older file beside it at
// path+".1". A write that would push the file past its limit goes to a fresh file.
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	limit   int64
	out     *os.File
	written int64
}

// Setup sends the standard logger to stdout and a rotating file at logPath.
func Setup(logPath string) (*RotatingWriter, error) {
	rw, err := NewRotatingWriter(logPath, DefaultMaxSize)
	if err != nil {
		return nil, err
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(io.MultiWriter(os.Stdout, rw))

	return rw, nil
}

// NewRotatingWriter opens path for appending. A file already over maxSize is moved to
// the backup slot first.
func NewRotatingWriter(path string, maxSize int64) (*RotatingWriter, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	w := &RotatingWriter{path: path, limit: maxSize}

	if info, err := os.Stat(path); err == nil && info.Size() > maxSize {
		if err := os.Rename(path, w.backupPath()); err != nil {
			return nil, fmt.Errorf("move oversized log: %w", err)
		}
	}
	if err := w.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) backupPath() string { return w.path + ".1" }

func (w *RotatingWriter) open(mode int) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return fmt.Errorf("open log %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log %s: %w", w.path, err)
	}
	w.out = f
	w.written = info.Size()
	return nil
}

// Write never splits p across files. A single write larger than the limit still lands
// whole in an otherwise empty file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written > 0 && w.written+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.out.Write(p)
	w.written += int64(n)
	return n, err
}

// rotate replaces the previous backup with the current file and starts an empty one.
func (w *RotatingWriter) rotate() error {
	if err := w.out.Close(); err != nil {
		return fmt.Errorf("close log: %w", err)
	}
	if err := os.Rename(w.path, w.backupPath()); err != nil {
		// Keep logging into the same file rather than losing output.
		return w.open(os.O_APPEND)
	}
	return w.open(os.O_TRUNC)
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}

// SetLevel enables Debugf output for "debug"; any other value silences it.
func SetLevel(level string) {
	debug.Store(strings.EqualFold(strings.TrimSpace(level), "debug"))
}

func DebugEnabled() bool {
	return debug.Load()
}

// Debugf logs through the standard logger when the level is debug.
func Debugf(format string, args ...interface{}) {
	if debug.Load() {
		log.Output(2, "DEBUG "+fmt.Sprintf(format, args...))
	}
}
