// Package logging provides the process-wide structured logger. It wraps
// log/slog with an explicit level and a Write method that reports failures
// of the underlying stream instead of swallowing them.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// Log levels accepted by Setup.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Options configures Setup.
type Options struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Verbose bool   `mapstructure:"verbose"`
}

// Logger is safe for concurrent use. Children created by With share the
// parent's output and file.
type Logger struct {
	logger *slog.Logger
	file   *os.File
	mu     *sync.Mutex
}

// Setup creates the logger for the process. Output goes to stderr and, when
// opts.File is set, is also appended to that file. A text handler is used
// only when stderr is a terminal and no file is configured.
func Setup(opts Options) (*Logger, error) {
	level := opts.Level
	if opts.Verbose {
		level = LevelDebug
	}

	var writer io.Writer = os.Stderr
	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create log directory")
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
		file = f
		writer = io.MultiWriter(os.Stderr, f)
	}

	text := file == nil && isatty.IsTerminal(os.Stderr.Fd())
	l := New(writer, level, !text)
	l.file = file
	return l, nil
}

// New creates a logger writing to w. It never opens files.
func New(w io.Writer, level string, json bool) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{logger: slog.New(handler), mu: &sync.Mutex{}}
}

// NopLogger discards everything.
func NopLogger() *Logger {
	return New(io.Discard, LevelError, true)
}

// parseLevel defaults to INFO for unrecognized strings.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn, "WARNING":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether level names one of the supported levels.
func ValidLevel(level string) bool {
	switch strings.ToUpper(level) {
	case LevelDebug, LevelInfo, LevelWarn, "WARNING", LevelError:
		return true
	}
	return false
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}

// With returns a child logger carrying the given key-value pairs.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), file: l.file, mu: l.mu}
}

// Slog exposes the underlying logger for packages that take *slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// Write emits one record and returns the handler's error, which is non-nil
// when the output could not be written.
func (l *Logger) Write(level slog.Level, msg string, args ...any) error {
	ctx := context.Background()
	handler := l.logger.Handler()
	if !handler.Enabled(ctx, level) {
		return nil
	}

	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.Add(args...)
	return handler.Handle(ctx, r)
}

func (l *Logger) Debug(msg string, args ...any) {
	_ = l.Write(slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	_ = l.Write(slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	_ = l.Write(slog.LevelWarn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	_ = l.Write(slog.LevelError, msg, args...)
}

// Close flushes and closes the log file, if any. Logging to stderr keeps
// working afterwards only for loggers without a file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync log file")
	}
	if err := l.file.Close(); err != nil {
		return errors.Wrap(err, "failed to close log file")
	}
	l.file = nil
	return nil
}
