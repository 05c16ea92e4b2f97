package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the name of the log file created in the experiment directory.
const LogFileName = "debug.log"

// Logger writes JSON lines through log/slog. Children made with the With*
// methods share the parent's output and add their own attributes.
type Logger struct {
	slog *slog.Logger
	out  *output
}

// output is the destination shared by a logger and all its children.
type output struct {
	mu   sync.Mutex
	file *os.File
}

// NewLogger creates a Logger that writes to {dir}/debug.log, or to stderr
// when dir is empty.
func NewLogger(dir string, level string) (*Logger, error) {
	if dir == "" {
		return NewWriterLogger(os.Stderr, level), nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewWriterLogger(file, level)
	l.out.file = file
	return l, nil
}

// NewWriterLogger creates a Logger that writes to w.
func NewWriterLogger(w io.Writer, level string) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{slog: slog.New(h), out: &output{}}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithExperiment tags lines with the experiment ID.
func (l *Logger) WithExperiment(id string) *Logger { return l.with(slog.String("experiment_id", id)) }

// WithRole tags lines with the node role ("coordinator", "peer").
func (l *Logger) WithRole(role string) *Logger { return l.with(slog.String("role", role)) }

// WithPeer tags lines with a peer ID.
func (l *Logger) WithPeer(peer string) *Logger { return l.with(slog.String("peer", peer)) }

// WithTrial tags lines with the trial index.
func (l *Logger) WithTrial(index int) *Logger { return l.with(slog.Int("trial", index)) }

// WithRound tags lines with the round index.
func (l *Logger) WithRound(index int) *Logger { return l.with(slog.Int("round", index)) }

// With adds key-value pairs. Pairs whose key is not a string are dropped.
func (l *Logger) With(args ...any) *Logger {
	attrs := make([]any, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return l.with(attrs...)
}

func (l *Logger) with(attrs ...any) *Logger {
	return &Logger{slog: l.slog.With(attrs...), out: l.out}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// Record writes an experiment record (a round or trial summary) at INFO,
// nested under "record" so records can be selected with
// `jq 'select(.record)'`.
func (l *Logger) Record(kind string, record any) {
	l.log(slog.LevelInfo, kind+" record", "record_kind", kind, "record", record)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	l.slog.Log(context.Background(), level, msg, args...)
}

// Close flushes and closes the log file. No-op for writer-backed loggers.
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.file == nil {
		return nil
	}
	if err := l.out.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	err := l.out.file.Close()
	l.out.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// NopLogger returns a Logger that discards all output.
func NopLogger() *Logger {
	return NewWriterLogger(io.Discard, LevelError)
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
