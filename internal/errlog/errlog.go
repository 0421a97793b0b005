// Package errlog maintains the append-only failure ledger. The file is
// plain text: a timestamped header line, then one failed source key (or
// "key: message") per line, suitable for building a follow-up re-run list.
package errlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Log struct {
	path string
	now  func() time.Time
}

func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

func (l *Log) Path() string { return l.path }

// EnsureInitialized creates the log file with a timestamped header if it
// does not exist. Calling it on an existing file is a no-op.
func (l *Log) EnsureInitialized() error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat error log %s: %w", l.path, err)
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create parent for %s: %w", l.path, err)
		}
	}
	header := fmt.Sprintf("# failed items - created %s\n", l.now().Format(time.RFC3339))
	if err := os.WriteFile(l.path, []byte(header), 0o644); err != nil {
		return fmt.Errorf("create error log %s: %w", l.path, err)
	}
	return nil
}

// Append records one failure. The existence check is repeated on every call
// so a log removed mid-run is recreated, header included, before the line
// is written.
func (l *Log) Append(sourceKey, message string) error {
	if err := l.EnsureInitialized(); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open error log %s: %w", l.path, err)
	}
	defer f.Close()

	line := sourceKey
	if message != "" {
		line = sourceKey + ": " + message
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append to error log %s: %w", l.path, err)
	}
	return nil
}
