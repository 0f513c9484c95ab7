package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\033[0m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

// sink is the output state shared by a logger and all of its prefixed children.
type sink struct {
	mu        sync.Mutex
	writer    io.Writer
	errWriter io.Writer
	fileLog   *os.File
	hasBar    bool
	color     bool
}

// Logger handles leveled logging with optional file output
type Logger struct {
	Verbose bool
	prefix  string
	out     *sink
}

// New creates a new Logger instance
func New(verbose bool) *Logger {
	return &Logger{
		Verbose: verbose,
		out: &sink{
			writer:    os.Stdout,
			errWriter: os.Stderr,
			color:     isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
		},
	}
}

// NewWriter creates a Logger writing both streams to w, without colour.
func NewWriter(w io.Writer, verbose bool) *Logger {
	return &Logger{
		Verbose: verbose,
		out:     &sink{writer: w, errWriter: w},
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, false)
}

// With returns a child logger that prefixes every message with prefix.
// The child shares the parent's outputs.
func (l *Logger) With(prefix string) *Logger {
	p := prefix
	if l.prefix != "" {
		p = l.prefix + " " + prefix
	}
	return &Logger{Verbose: l.Verbose, prefix: p, out: l.out}
}

// SetFileLog enables logging to a file
func (l *Logger) SetFileLog(path string) error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.out.fileLog = f
	return nil
}

// SetProgressBar indicates that a progress bar is active
func (l *Logger) SetProgressBar(active bool) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.hasBar = active
}

// Close closes the log file if open
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.fileLog != nil {
		err := l.out.fileLog.Close()
		l.out.fileLog = nil
		return err
	}
	return nil
}

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.log("INFO", format, args...)
}

// Debug logs detailed messages only in verbose mode
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.Verbose {
		l.log("DEBUG", format, args...)
	} else {
		// Debug always reaches the file log
		l.logToFile("DEBUG", format, args...)
	}
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log("WARN", format, args...)
}

// Error logs error messages to stderr
func (l *Logger) Error(format string, args ...interface{}) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	msg := l.format("ERROR", format, args...)
	if l.out.color {
		fmt.Fprint(l.out.errWriter, colorRed+msg+colorReset)
	} else {
		fmt.Fprint(l.out.errWriter, msg)
	}

	if l.out.fileLog != nil {
		l.out.fileLog.WriteString(msg)
	}
}

func (l *Logger) format(level, format string, args ...interface{}) string {
	body := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		body = l.prefix + " " + body
	}
	if level == "INFO" {
		return body + "\n"
	}
	return "[" + level + "] " + body + "\n"
}

// log handles the actual logging
func (l *Logger) log(level, format string, args ...interface{}) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	msg := l.format(level, format, args...)

	// Console output is suppressed while a progress bar owns the terminal
	if l.Verbose || !l.out.hasBar {
		if level == "WARN" && l.out.color {
			fmt.Fprint(l.out.writer, colorYellow+msg+colorReset)
		} else {
			fmt.Fprint(l.out.writer, msg)
		}
	}

	if l.out.fileLog != nil {
		l.out.fileLog.WriteString(msg)
	}
}

// logToFile writes only to file
func (l *Logger) logToFile(level, format string, args ...interface{}) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.fileLog != nil {
		l.out.fileLog.WriteString(l.format(level, format, args...))
	}
}
