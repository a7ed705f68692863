package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// scopeName is the instrumentation scope reported through the OTel bridge.
const scopeName = "magiccal"

var (
	mu         sync.RWMutex
	logger     *slog.Logger
	text       slog.Handler
	loggerOnce sync.Once
	minLevel   = new(slog.LevelVar)
)

// initLogger initializes the global logger to write text records to stderr.
func initLogger() {
	loggerOnce.Do(func() {
		minLevel.Set(slog.LevelInfo)
		setOutput(os.Stderr)
	})
}

func setOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	text = slog.NewTextHandler(w, &slog.HandlerOptions{Level: minLevel})
	logger = slog.New(text)
}

// ParseLevel maps a config string onto a Level. Unknown values become INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func SetLevel(l Level) {
	initLogger()
	minLevel.Set(l.slogLevel())
}

// EnableTelemetry additionally routes records through the OpenTelemetry
// slog bridge. Stderr keeps receiving them, so nothing is lost while the
// global LoggerProvider is still the no-op one.
func EnableTelemetry() {
	initLogger()
	bridge := &levelHandler{min: minLevel, next: otelslog.NewHandler(scopeName)}
	mu.Lock()
	logger = slog.New(slog.NewMultiHandler(text, bridge))
	mu.Unlock()
}

func Debug(msg string, kv ...any) {
	current().Debug(msg, kv...)
}

func Info(msg string, kv ...any) {
	current().Info(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	current().Error(msg, extended...)
}

func current() *slog.Logger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// levelHandler applies the package minimum level in front of a handler that
// has no level option of its own (the OTel bridge).
type levelHandler struct {
	min  slog.Leveler
	next slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.min.Level() && h.next.Enabled(ctx, l)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{min: h.min, next: h.next.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{min: h.min, next: h.next.WithGroup(name)}
}
