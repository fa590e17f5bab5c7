package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ResultLog is the append-only JSONL output stream. Each line is a 2- or
// 3-element array: [payload, outcome] or [payload, outcome, metadata].
// Every terminal job outcome is written exactly once; non-terminal
// retries are never logged.
type ResultLog struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

// CreateResultLog opens a new result file for the run. Refusing to
// overwrite an existing file is a startup-time fatal condition; parent
// directories are created as needed.
func CreateResultLog(path string) (*ResultLog, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("results file %s already exists; delete it or choose a different output path", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating results file: %w", err)
	}

	return &ResultLog{f: f, path: path}, nil
}

// Append writes one terminal outcome line. Concurrent dispatch
// goroutines serialize on the log's mutex.
func (l *ResultLog) Append(entry []any) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}

// Path returns the current output path.
func (l *ResultLog) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Close flushes and closes the underlying file. Safe to call twice.
func (l *ResultLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}

// MarkErrors renames the closed log to <name>_with_errors.jsonl so a
// partially failed batch is visible from the filename alone. Call after
// Close, only when the run finished with failures.
func (l *ResultLog) MarkErrors() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	renamed := strings.TrimSuffix(l.path, ".jsonl") + "_with_errors.jsonl"
	if err := os.Rename(l.path, renamed); err != nil {
		return "", fmt.Errorf("renaming results file: %w", err)
	}
	l.path = renamed
	return renamed, nil
}
