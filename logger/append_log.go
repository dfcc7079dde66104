package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// EntryTimeLayout is the timestamp layout prefixed to every append log line.
const EntryTimeLayout = "2006-01-02 15:04:05"

// EventLog is the append-only log consumed by the reactor for connection
// lifecycle events.
type EventLog interface {
	// Write appends one line made of the timestamp followed by fields
	// separated by single spaces.
	Write(ts time.Time, fields ...any) error
}

// AppendLog is an EventLog writing one line per entry to an io.Writer,
// typically a RotatingFileWriter. Safe for concurrent use.
type AppendLog struct {
	mu sync.Mutex
	w  io.Writer
}

// NewAppendLog returns an AppendLog writing to w.
func NewAppendLog(w io.Writer) *AppendLog {
	return &AppendLog{w: w}
}

// OpenAppendLog opens a size-rotated append log at path.
//
// Parameters:
//   - path: File to append to
//   - maxBytes: Rotation threshold in bytes
//
// Returns:
//   - The AppendLog and the RotatingFileWriter backing it (close it when done)
//   - An error if the file could not be opened
func OpenAppendLog(path string, maxBytes int64) (*AppendLog, *RotatingFileWriter, error) {
	w, err := NewRotatingFileWriter(path, maxBytes)
	if err != nil {
		return nil, nil, err
	}

	return NewAppendLog(w), w, nil
}

// Write implements EventLog.
func (l *AppendLog) Write(ts time.Time, fields ...any) error {
	var b strings.Builder
	b.WriteString(ts.Format(EntryTimeLayout))
	for _, f := range fields {
		b.WriteByte(' ')
		fmt.Fprint(&b, f)
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.w, b.String())
	return err
}

// NopEventLog discards every entry.
type NopEventLog struct{}

// Write implements EventLog.
func (NopEventLog) Write(time.Time, ...any) error { return nil }
