package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Field keys shared by every component so log lines can be joined on them.
const (
	KeyComponent = "component"
	KeyWatch     = "watch_id"
	KeyRun       = "run_id"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Setup installs the process logger, JSON lines on stdout.
func Setup(level string) {
	SetupWriter(level, os.Stdout)
}

// SetupWriter installs the process logger writing to w. The first call wins;
// later calls are ignored so tests and commands can both call it.
func SetupWriter(level string, w io.Writer) {
	once.Do(func() {
		logger = New(level, w)
		slog.SetDefault(logger)
	})
}

// New builds a JSON logger without touching the process logger.
func New(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel accepts the names used in service.log_level. Unknown names mean INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Get returns the process logger, installing an INFO one on first use.
func Get() *slog.Logger {
	if logger == nil {
		Setup("INFO")
	}
	return logger
}

func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String(KeyComponent, name))
}

// ForRun tags l with the watch and run a line belongs to. An empty runID
// leaves the run field off.
func ForRun(l *slog.Logger, watchID, runID string) *slog.Logger {
	attrs := []any{slog.String(KeyWatch, watchID)}
	if runID != "" {
		attrs = append(attrs, slog.String(KeyRun, runID))
	}
	return l.With(attrs...)
}

// Debug logs on the process logger.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}
