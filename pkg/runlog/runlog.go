package runlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimestampFormat is used in artifact file names.
const TimestampFormat = "20060102T150405"

// File is a line oriented run artifact. A File that received no lines is
// removed on Close so only meaningful artifacts remain after a run.
type File struct {
	mutex  sync.Mutex
	path   string
	f      *os.File
	w      *bufio.Writer
	lines  int
	closed bool
}

// Create opens <dir>/<prefix>_<timestamp>.txt.
func Create(dir, prefix string, ts time.Time) (*File, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.txt", prefix, ts.Format(TimestampFormat)))
	return Open(path)
}

// Open creates or truncates the file at path.
func Open(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating %s: %w", path, err)
	}
	return &File{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (l *File) Path() string {
	return l.path
}

// Line appends one line.
func (l *File) Line(format string, args ...any) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return fmt.Errorf("%s is closed", l.path)
	}
	if _, err := fmt.Fprintf(l.w, format+"\n", args...); err != nil {
		return err
	}
	l.lines++
	return nil
}

// Transfer records a local file queued for upload to bucket/key.
func (l *File) Transfer(localPath, bucket, key string) error {
	return l.Line("%s\t%s/%s", localPath, bucket, key)
}

func (l *File) Lines() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.lines
}

// Close flushes the file and deletes it if it is empty. It reports whether the
// file was kept.
func (l *File) Close() (bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return l.lines > 0, nil
	}
	l.closed = true
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return false, err
	}
	if err := l.f.Close(); err != nil {
		return false, err
	}
	if l.lines == 0 {
		return false, os.Remove(l.path)
	}
	return true, nil
}
