package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// Leveled logger shared by the service.
// - backed by log/slog; tint for console output, JSON when format is "json"
// - provides Debug/Info/Warn/Error/Fatal variants and Init(level)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// slog has no fatal level; fatal records are emitted above error.
const slogLevelFatal = slog.LevelError + 4

var (
	mu      sync.RWMutex
	out     io.Writer = os.Stdout
	format            = "text"
	level             = LevelInfo
	slogLvl           = new(slog.LevelVar)
	logger            = newLogger(out, format)
)

func newLogger(w io.Writer, f string) *slog.Logger {
	if f == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLvl}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slogLvl,
		TimeFormat: time.RFC3339,
		NoColor:    w != os.Stdout,
	}))
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level = LevelDebug
		slogLvl.Set(slog.LevelDebug)
	case "warn", "warning":
		level = LevelWarn
		slogLvl.Set(slog.LevelWarn)
	case "error":
		level = LevelError
		slogLvl.Set(slog.LevelError)
	case "fatal":
		level = LevelFatal
		slogLvl.Set(slogLevelFatal)
	default:
		level = LevelInfo
		slogLvl.Set(slog.LevelInfo)
	}
}

// SetFormat switches between console ("text") and "json" output.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	format = strings.ToLower(strings.TrimSpace(f))
	logger = newLogger(out, format)
}

// SetOutput redirects log output; used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	logger = newLogger(out, format)
}

// Logger returns the underlying structured logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debugf(format string, v ...interface{}) {
	Logger().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	Logger().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	Logger().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	Logger().Error(fmt.Sprintf(format, v...))
}

func Fatalf(format string, v ...interface{}) {
	l := Logger()
	l.Log(context.Background(), slogLevelFatal, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Debug/Info/Warn/Error take a message plus slog key/value pairs
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}
