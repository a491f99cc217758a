package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// --- 1. Error Reporting ---

// ShowError prints the boxed error report without exiting.
// Commands using RunE call it before returning the error to cobra.
func ShowError(context string, err error, hint string) {
	writeError(os.Stderr, context, err, hint)
}

// Die is the unified exit strategy for lipcheck.
// It prints the boxed error report and exits with status 1.
func Die(context string, err error, hint string) {
	writeError(os.Stderr, context, err, hint)
	os.Exit(1)
}

func writeError(w io.Writer, context string, err error, hint string) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🚨 LIPCHECK ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(w, "DETAILS: %v\n", err)
	}
	if hint != "" {
		fmt.Fprintf(w, "\nHINT: %s\n", hint)
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// --- 2. Run Log ---

// Logger writes "timestamp - message" records to the console and, when
// opened with a path, appends them to a log file as well.
type Logger struct {
	mu   sync.Mutex
	out  io.Writer
	file *os.File
	now  func() time.Time
}

// NewLogger logs to stderr and appends to path. An empty path logs to
// stderr only.
func NewLogger(path string) (*Logger, error) {
	l := NewWriterLogger(os.Stderr)
	if path == "" {
		return l, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l.file = f
	l.out = io.MultiWriter(os.Stderr, f)
	return l, nil
}

// NewWriterLogger logs to w only.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: w, now: time.Now}
}

// Printf formats one record. A trailing newline is added.
func (l *Logger) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s - %s\n", l.now().Format(time.RFC3339), msg)
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
