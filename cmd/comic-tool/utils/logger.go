package utils

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"comic-tool/internal/util"
)

// NewSlog builds the process-wide slog logger. format is "text" or "json";
// verbose forces debug level.
func NewSlog(w io.Writer, format, level string, verbose bool) *slog.Logger {
	lvl := ParseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// SlogLogger adapts a slog.Logger to util.Logger.
type SlogLogger struct {
	Slog *slog.Logger
}

var _ util.Logger = (*SlogLogger)(nil)

// NewLogger wraps l for the internal packages.
func NewLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{Slog: l}
}

// LogFunc returns the logger as a func(level, message), the shape
// util.SimpleLogger forwards to.
func (l *SlogLogger) LogFunc() func(level, message string) {
	return func(level, message string) {
		switch strings.ToUpper(level) {
		case "DEBUG":
			l.Debug(message)
		case "WARNING", "WARN":
			l.Warning(message)
		case "ERROR":
			l.Error(message)
		default:
			l.Info(message)
		}
	}
}

func (l *SlogLogger) Debug(msg string)   { l.log(slog.LevelDebug, msg) }
func (l *SlogLogger) Info(msg string)    { l.log(slog.LevelInfo, msg) }
func (l *SlogLogger) Warning(msg string) { l.log(slog.LevelWarn, msg) }
func (l *SlogLogger) Error(msg string)   { l.log(slog.LevelError, msg) }

func (l *SlogLogger) log(level slog.Level, msg string) {
	if l == nil || l.Slog == nil {
		return
	}
	l.Slog.Log(context.Background(), level, msg)
}
