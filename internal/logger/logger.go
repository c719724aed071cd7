package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

// Logger is an instance of the structured logger owned by an rdmnet Context.
//
// Unlike a process-global logger, every rdmnet.Context constructs and owns
// its own Logger so that multiple independently-init'd cores in the same
// process never share mutable log state (see spec.md §9 "Global singletons").
type Logger struct {
	currentLevel  atomic.Int32
	currentFormat atomic.Value // stores "text" or "json"

	mu       sync.RWMutex
	handler  slog.Handler
	slogger  *slog.Logger
	output   io.Writer
	useColor bool
}

// New constructs a Logger from Config. Output may be "stdout", "stderr",
// a file path, or empty (defaults to stdout).
func New(cfg Config) (*Logger, error) {
	l := &Logger{output: os.Stdout, useColor: true}
	l.currentLevel.Store(int32(LevelInfo))
	l.currentFormat.Store("text")

	if f, ok := l.output.(*os.File); ok {
		l.useColor = isTerminal(f.Fd())
	}

	if err := l.configureOutput(cfg.Output); err != nil {
		return nil, err
	}
	if cfg.Level != "" {
		l.SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		l.SetFormat(cfg.Format)
	}
	l.reconfigure()
	return l, nil
}

// NewForWriter builds a Logger writing to an arbitrary io.Writer; used in
// tests to capture output deterministically.
func NewForWriter(w io.Writer, level, format string, enableColor bool) *Logger {
	l := &Logger{output: w, useColor: enableColor}
	l.currentLevel.Store(int32(LevelInfo))
	l.currentFormat.Store("text")
	if level != "" {
		l.SetLevel(level)
	}
	if format != "" {
		l.SetFormat(format)
	}
	l.reconfigure()
	return l
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) configureOutput(output string) error {
	if output == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	switch strings.ToLower(output) {
	case "stdout":
		l.output = os.Stdout
		l.useColor = isTerminal(os.Stdout.Fd())
	case "stderr":
		l.output = os.Stderr
		l.useColor = isTerminal(os.Stderr.Fd())
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", output, err)
		}
		l.output = f
		l.useColor = false
	}
	return nil
}

// reconfigure rebuilds the slog handler based on current settings.
func (l *Logger) reconfigure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	level := Level(l.currentLevel.Load())
	format, _ := l.currentFormat.Load().(string)

	levelVar := new(slog.LevelVar)
	levelVar.Set(toSlogLevel(level))

	opts := &slog.HandlerOptions{Level: levelVar}

	if format == "json" {
		l.handler = slog.NewJSONHandler(l.output, opts)
	} else {
		l.handler = NewColorTextHandler(l.output, opts, l.useColor)
	}
	l.slogger = slog.New(l.handler)
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		l.currentLevel.Store(int32(LevelDebug))
	case "INFO":
		l.currentLevel.Store(int32(LevelInfo))
	case "WARN":
		l.currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		l.currentLevel.Store(int32(LevelError))
	default:
		return
	}
	l.reconfigure()
}

// SetFormat sets the output format ("text" or "json").
func (l *Logger) SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	l.currentFormat.Store(format)
	l.reconfigure()
}

func (l *Logger) get() *slog.Logger {
	l.mu.RLock()
	s := l.slogger
	l.mu.RUnlock()
	return s
}

// Debug logs at debug level with structured fields.
func (l *Logger) Debug(msg string, args ...any) {
	if LevelDebug < Level(l.currentLevel.Load()) {
		return
	}
	l.get().Debug(msg, args...)
}

// Info logs at info level with structured fields.
func (l *Logger) Info(msg string, args ...any) {
	if LevelInfo < Level(l.currentLevel.Load()) {
		return
	}
	l.get().Info(msg, args...)
}

// Warn logs at warn level with structured fields.
func (l *Logger) Warn(msg string, args ...any) {
	if LevelWarn < Level(l.currentLevel.Load()) {
		return
	}
	l.get().Warn(msg, args...)
}

// Error logs at error level with structured fields.
func (l *Logger) Error(msg string, args ...any) {
	l.get().Error(msg, args...)
}

// DebugCtx logs at debug level, auto-injecting LogContext fields.
func (l *Logger) DebugCtx(ctx context.Context, msg string, args ...any) {
	if LevelDebug < Level(l.currentLevel.Load()) {
		return
	}
	l.get().Debug(msg, appendContextFields(ctx, args)...)
}

// InfoCtx logs at info level, auto-injecting LogContext fields.
func (l *Logger) InfoCtx(ctx context.Context, msg string, args ...any) {
	if LevelInfo < Level(l.currentLevel.Load()) {
		return
	}
	l.get().Info(msg, appendContextFields(ctx, args)...)
}

// WarnCtx logs at warn level, auto-injecting LogContext fields.
func (l *Logger) WarnCtx(ctx context.Context, msg string, args ...any) {
	if LevelWarn < Level(l.currentLevel.Load()) {
		return
	}
	l.get().Warn(msg, appendContextFields(ctx, args)...)
}

// ErrorCtx logs at error level, auto-injecting LogContext fields.
func (l *Logger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	l.get().Error(msg, appendContextFields(ctx, args)...)
}

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 12+len(args))
	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		ctxArgs = append(ctxArgs, KeySpanID, lc.SpanID)
	}
	if lc.CID != "" {
		ctxArgs = append(ctxArgs, KeyCID, lc.CID)
	}
	if lc.Scope != "" {
		ctxArgs = append(ctxArgs, KeyScope, lc.Scope)
	}
	if lc.ConnectionID != "" {
		ctxArgs = append(ctxArgs, KeyConnectionID, lc.ConnectionID)
	}
	ctxArgs = append(ctxArgs, args...)
	return ctxArgs
}

// With returns a *slog.Logger with additional bound attributes, for callers
// that need to thread a decorated logger through several calls.
func (l *Logger) With(args ...any) *slog.Logger {
	return l.get().With(args...)
}

// Duration returns elapsed time since start in milliseconds.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
