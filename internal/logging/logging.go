// Package logging sets up the process-wide slog logger. Records at error
// level and above are also reported to Sentry when a DSN is configured.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config holds logging configuration.
type Config struct {
	Level     slog.Level
	SentryDSN string
	Env       string // "development", "production"
	Version   string
	LogFile   string // empty = stderr

	// Output overrides LogFile. Tests use it to capture records.
	Output io.Writer
}

// Logger wraps slog.Logger with Sentry integration.
type Logger struct {
	*slog.Logger
	sentryEnabled bool
	logFile       *os.File
}

var (
	mu            sync.RWMutex
	defaultLogger *Logger
)

// Init installs the global logger. The TUI owns the terminal, so the desktop
// binary always passes a LogFile; the CLI subcommands log to stderr.
func Init(cfg Config) error {
	sentryEnabled := false
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			Release:          cfg.Version,
			TracesSampleRate: 0.1,
		})
		if err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		sentryEnabled = true
	}

	var output io.Writer = os.Stderr
	var logFile *os.File
	switch {
	case cfg.Output != nil:
		output = cfg.Output
	case cfg.LogFile != "":
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		output = f
		logFile = f
	}

	handler := &sentryHandler{
		Handler: slog.NewTextHandler(output, &slog.HandlerOptions{
			Level:     cfg.Level,
			AddSource: cfg.Level <= slog.LevelDebug,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					if t, ok := a.Value.Any().(time.Time); ok {
						a.Value = slog.StringValue(t.Local().Format("2006-01-02T15:04:05.000-07:00"))
					}
				}
				return a
			},
		}),
		sentryEnabled: sentryEnabled,
	}

	l := &Logger{
		Logger:        slog.New(handler),
		sentryEnabled: sentryEnabled,
		logFile:       logFile,
	}

	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l.Logger)
	return nil
}

// Flush sends buffered Sentry events and closes the log file. Call before
// the process exits.
func Flush(timeout time.Duration) {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return
	}
	if l.sentryEnabled {
		sentry.Flush(timeout)
	}
	if l.logFile != nil {
		_ = l.logFile.Sync()
		_ = l.logFile.Close()
	}
}

// Default returns the global logger, or a wrapper around slog.Default if Init
// has not run.
func Default() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return &Logger{Logger: slog.Default()}
	}
	return defaultLogger
}

func sentryOn() bool {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger != nil && defaultLogger.sentryEnabled
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// sentryHandler wraps an slog.Handler and forwards errors to Sentry.
type sentryHandler struct {
	slog.Handler
	sentryEnabled bool
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.Handler.Handle(ctx, r); err != nil {
		return err
	}
	if h.sentryEnabled && r.Level >= slog.LevelError {
		h.sendToSentry(r)
	}
	return nil
}

func (h *sentryHandler) sendToSentry(r slog.Record) {
	event := sentry.NewEvent()
	event.Level = slogLevelToSentry(r.Level)
	event.Message = r.Message
	event.Timestamp = r.Time

	r.Attrs(func(a slog.Attr) bool {
		event.Extra[a.Key] = a.Value.Any()
		return true
	})

	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		event.Exception = []sentry.Exception{{
			Type:  "LogError",
			Value: r.Message,
			Stacktrace: &sentry.Stacktrace{
				Frames: []sentry.Frame{{
					Filename: frame.File,
					Function: frame.Function,
					Lineno:   frame.Line,
				}},
			},
		}}
	}

	sentry.CaptureEvent(event)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sentryHandler{Handler: h.Handler.WithAttrs(attrs), sentryEnabled: h.sentryEnabled}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{Handler: h.Handler.WithGroup(name), sentryEnabled: h.sentryEnabled}
}

func slogLevelToSentry(level slog.Level) sentry.Level {
	switch {
	case level >= slog.LevelError:
		return sentry.LevelError
	case level >= slog.LevelWarn:
		return sentry.LevelWarning
	case level >= slog.LevelInfo:
		return sentry.LevelInfo
	default:
		return sentry.LevelDebug
	}
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { Default().Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { Default().Warn(msg, args...) }

// Error logs at error level and, when enabled, reports to Sentry.
func Error(msg string, args ...any) { Default().Error(msg, args...) }

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger { return Default().With(args...) }

// CaptureError reports err to Sentry with key/value context and logs it.
func CaptureError(err error, kv ...any) {
	if sentryOn() {
		sentry.WithScope(func(scope *sentry.Scope) {
			for i := 0; i+1 < len(kv); i += 2 {
				if key, ok := kv[i].(string); ok {
					scope.SetExtra(key, kv[i+1])
				}
			}
			sentry.CaptureException(err)
		})
	}
	args := append([]any{"error", err}, kv...)
	Default().Error("captured error", args...)
}

// CapturePanic records a recovered panic value. Call it from a deferred
// recover. It returns the value so callers can re-panic.
func CapturePanic(panicValue any, kv ...any) any {
	if panicValue == nil {
		return nil
	}

	msg := fmt.Sprintf("panic: %v", panicValue)
	args := append([]any{"panic", panicValue}, kv...)
	Default().Error(msg, args...)

	if sentryOn() {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentry.LevelFatal)
			scope.SetTag("type", "panic")
			for i := 0; i+1 < len(kv); i += 2 {
				if key, ok := kv[i].(string); ok {
					scope.SetExtra(key, kv[i+1])
				}
			}
			if err, ok := panicValue.(error); ok {
				sentry.CaptureException(err)
			} else {
				sentry.CaptureMessage(msg)
			}
		})
		sentry.Flush(2 * time.Second)
	}

	return panicValue
}
