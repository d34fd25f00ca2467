// Package logging builds the structured logger shared by the dashboard and
// its tools: slog JSON records written to stderr and, when a directory is
// configured, to a size-rotated log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a slog.Logger plus the rotating file behind it, if any.
type Logger struct {
	*slog.Logger

	// LogFile is empty when logging to stderr only
	LogFile string

	file *lumberjack.Logger
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown names
// select info and return an error.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
}

// New creates a logger named after the program. An empty dir logs to
// stderr only.
func New(name, level, dir string) *Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v, using info\n", name, err)
	}

	var (
		w    io.Writer = os.Stderr
		file *lumberjack.Logger
	)
	if dir != "" {
		file = &lumberjack.Logger{
			Filename:   filepath.Join(dir, name+".slog"),
			MaxSize:    64, // MB
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, file)
	}

	l := &Logger{
		Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})).With(slog.String("app", name)),
		file:   file,
	}
	if file != nil {
		l.LogFile = file.Filename
	}

	l.Debug("System information",
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("GOOS", runtime.GOOS),
		slog.Int("NumCPUs", runtime.NumCPU()))

	return l
}

// NewWriter creates a JSON logger on an arbitrary writer, for tests and tools.
func NewWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Close flushes and closes the rotating file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
