package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BackupTimeLayout is the suffix layout of rotated files: <path>.<suffix>.
const BackupTimeLayout = "2006-01-02_15-04-05"

// RotatingFileWriter is an io.Writer appending to a single file. Before a
// write, if the file has grown past the size limit, it is renamed to
// <path>.<timestamp> and a fresh file is opened at path, so rotation is
// transparent to callers. Safe for concurrent use.
type RotatingFileWriter struct {
	path     string
	maxBytes int64
	now      func() time.Time

	mu     sync.Mutex
	file   *os.File
	size   int64
	closed bool
}

// NewRotatingFileWriter opens (creating if needed) the file at path for
// appending. The parent directory is created when missing.
//
// Parameters:
//   - path: File to append to
//   - maxBytes: Size above which the file is rotated; 0 disables rotation
//
// Returns:
//   - The new writer, or an error if the file could not be opened
func NewRotatingFileWriter(path string, maxBytes int64) (*RotatingFileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingFileWriter{path: path, maxBytes: maxBytes, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}

	return w, nil
}

// open opens the file at w.path; caller must hold w.mu or own w exclusively.
func (w *RotatingFileWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", w.path, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file %s: %w", w.path, err)
	}

	w.file = file
	w.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("writer is closed")
	}

	if w.maxBytes > 0 && w.size > w.maxBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, fmt.Errorf("rotation failed: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Rotate forces a rotation regardless of the current size.
func (w *RotatingFileWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	return w.rotateLocked()
}

func (w *RotatingFileWriter) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	backup := w.backupName()
	if err := os.Rename(w.path, backup); err != nil {
		// Keep writing to the original file rather than losing entries.
		if openErr := w.open(); openErr != nil {
			return openErr
		}
		return fmt.Errorf("failed to rename %s: %w", w.path, err)
	}

	return w.open()
}

// backupName picks <path>.<timestamp>, adding a counter when a rotation
// already happened within the same second.
func (w *RotatingFileWriter) backupName() string {
	base := w.path + "." + w.now().Format(BackupTimeLayout)
	name := base
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s.%d", base, i)
	}
}

// Size returns the number of bytes in the current file.
func (w *RotatingFileWriter) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Path returns the path of the active file.
func (w *RotatingFileWriter) Path() string {
	return w.path
}

// Close closes the current file. Subsequent writes return an error. It is
// safe to call multiple times.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	return w.file.Close()
}
