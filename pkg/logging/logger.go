// Package logging provides the file logger for the execution core. Output
// goes to a rotated log file under the Angela config root; user-visible
// progress lines are additionally mirrored to stdout.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes leveled, timestamped log lines.
type Logger struct {
	mu     sync.Mutex
	out    io.WriteCloser
	mirror io.Writer // progress lines also go here; nil disables
}

// NewLogger creates a logger writing to angela.log under dir, rotated at
// 10 MB with three backups kept.
func NewLogger(dir string) *Logger {
	return &Logger{
		out: &lumberjack.Logger{
			Filename:   filepath.Join(dir, "angela.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		},
		mirror: os.Stdout,
	}
}

// NewSilentLogger creates a logger that only writes to the log file.
func NewSilentLogger(dir string) *Logger {
	l := NewLogger(dir)
	l.mirror = nil
	return l
}

func (l *Logger) log(level string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] [%s] %s\n", timestamp, strings.ToUpper(level), message)

	if _, err := io.WriteString(l.out, line); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write to log: %v\n", err)
	}
}

// Debug logs debug information.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log("debug", format, args...)
}

// Info logs informational messages.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log("info", format, args...)
}

// Warn logs warning messages.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log("warn", format, args...)
}

// Error logs error messages.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log("error", format, args...)
}

// LogProcessStep records a user-visible progress line.
func (l *Logger) LogProcessStep(message string) {
	l.log("info", "%s", message)
	if l.mirror != nil {
		fmt.Fprintln(l.mirror, message)
	}
}

// Close flushes and closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
