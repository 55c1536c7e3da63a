package log

import (
	"io"
	"os"
	"sync"
)

// FileLogger appends capture records to a writer. Encoding errors are
// counted, never returned: a broken capture must not disturb the client.
type FileLogger struct {
	mu     sync.Mutex
	w      io.WriteCloser
	closed bool

	events int
	bytes  int64
	failed int
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return NewStreamLogger(f), nil
}

// NewStreamLogger records to w. Close closes w.
func NewStreamLogger(w io.WriteCloser) *FileLogger {
	return &FileLogger{w: w}
}

// Log implements Logger. Each record is written with a single Write so
// concurrent appenders never interleave partial records.
func (l *FileLogger) Log(event Event) {
	data, err := EncodeEvent(event)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if err == nil {
		var n int
		n, err = l.w.Write(data)
		l.bytes += int64(n)
	}
	if err != nil {
		l.failed++
		return
	}
	l.events++
}

// Stats returns the number of events recorded and the number lost.
func (l *FileLogger) Stats() (written, failed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events, l.failed
}

// Size returns the number of bytes written since the logger was opened.
func (l *FileLogger) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bytes
}

// Close closes the writer. Later Log calls are dropped; repeated Close
// calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if f, ok := l.w.(*os.File); ok {
		_ = f.Sync()
	}
	return l.w.Close()
}

var _ Logger = (*FileLogger)(nil)
