package observability

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// WriterLogger writes level-prefixed key=value lines to a single writer. It
// is meant for command-line frontends; services plug in their own Logger.
type WriterLogger struct {
	mu     *sync.Mutex
	w      io.Writer
	debug  bool
	fields []Field
}

// NewWriterLogger creates a logger writing to w. Debug lines are dropped
// unless debug is set.
func NewWriterLogger(w io.Writer, debug bool) *WriterLogger {
	return &WriterLogger{mu: &sync.Mutex{}, w: w, debug: debug}
}

func (l *WriterLogger) Debug(msg string, fields ...Field) {
	if l.debug {
		l.write("DEBUG", msg, fields)
	}
}
func (l *WriterLogger) Info(msg string, fields ...Field)  { l.write("INFO", msg, fields) }
func (l *WriterLogger) Warn(msg string, fields ...Field)  { l.write("WARN", msg, fields) }
func (l *WriterLogger) Error(msg string, fields ...Field) { l.write("ERROR", msg, fields) }

func (l *WriterLogger) With(fields ...Field) Logger {
	child := *l
	child.fields = append(append([]Field(nil), l.fields...), fields...)
	return &child
}

func (l *WriterLogger) write(level, msg string, fields []Field) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", time.Now().UTC().Format(time.RFC3339), level, msg)
	for _, f := range l.fields {
		fmt.Fprintf(&b, " %s=%v", f.Key(), f.Value())
	}
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key(), f.Value())
	}
	b.WriteByte('\n')
	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.w, b.String())
}
