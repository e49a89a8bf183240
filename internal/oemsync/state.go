package oemsync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Watermark is the file holding the start time of the last run that
// finished with zero failures.
type Watermark struct {
	path string
}

func NewWatermark(path string) *Watermark {
	return &Watermark{path: path}
}

// Load returns ok=false when the file is missing or does not hold a
// timestamp; both mean "no previous successful run".
func (w *Watermark) Load() (time.Time, bool, error) {
	raw, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
	if err != nil {
		return time.Time{}, false, nil
	}
	return at, true, nil
}

// Save replaces the watermark through a rename so a crash never leaves a
// half-written file.
func (w *Watermark) Save(at time.Time) error {
	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".watermark-*")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(tmp, at.UTC().Format(time.RFC3339Nano)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), w.path)
}

// ErrorLog appends "[YYYY-MM-DD HH:MM:SS] message" lines. It is never
// truncated by the pipeline.
type ErrorLog struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewErrorLog(path string, now func() time.Time) *ErrorLog {
	if now == nil {
		now = time.Now
	}
	return &ErrorLog{path: path, now: now}
}

func (l *ErrorLog) Path() string {
	return l.path
}

func (l *ErrorLog) Append(format string, args ...any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("[%s] %s\n", l.now().Format("2006-01-02 15:04:05"), strings.TrimSpace(fmt.Sprintf(format, args...)))
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
