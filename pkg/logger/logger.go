package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the level and output format of the process logger.
type Config struct {
	Level  string
	Format string // "json" or "console"
	Output io.Writer
}

type Logger struct {
	zl zerolog.Logger
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	out := cfg.Output
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(out).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.zl.Warn().Msgf(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.zl.Error().Msgf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.zl.Error().Msgf(format, v...)
	os.Exit(1)
}

// Zerolog exposes the underlying logger for structured fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

var (
	mu           sync.RWMutex
	GlobalLogger = New(Config{Level: "info", Format: "json"})
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

// Init replaces the global logger. Safe to call while other goroutines log.
func Init(cfg Config) {
	l := New(cfg)
	mu.Lock()
	GlobalLogger = l
	mu.Unlock()
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return GlobalLogger
}

// Log returns the global zerolog logger for structured events:
//
//	logger.Log().Debug().Int("room_id", id).Err(err).Msg("delivery failed")
func Log() *zerolog.Logger {
	return current().Zerolog()
}

// Convenience functions
func Info(format string, v ...interface{}) {
	current().Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	current().Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	current().Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	current().Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	current().Fatal(format, v...)
}

