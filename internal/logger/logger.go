// Package logger provides the structured logging contract used across the
// repository and its zap-backed implementation.
package logger

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal leveled logging surface components depend on. Args
// are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Debug(string, ...any) {}
func (Noop) Info(string, ...any)  {}
func (Noop) Warn(string, ...any)  {}
func (Noop) Error(string, ...any) {}

// Format selects the zap encoder.
type Format string

const (
	// FormatConsole is human readable output.
	FormatConsole Format = "CONSOLE"
	// FormatJSON is structured JSON output.
	FormatJSON Format = "JSON"
)

func parseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339Nano))
}

// New builds a zap logger writing to stderr.
func New(level string, format Format) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	var enc zapcore.Encoder
	if strings.ToUpper(string(format)) == string(FormatJSON) {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(parseLevel(level)))
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// FromEnv builds a logger from IDCORE_LOG_LEVEL and IDCORE_LOG_FORMAT.
func FromEnv() *zap.Logger {
	format := Format(os.Getenv("IDCORE_LOG_FORMAT"))
	if format == "" {
		format = FormatConsole
	}
	return New(os.Getenv("IDCORE_LOG_LEVEL"), format)
}

// Sugared adapts a zap logger to Logger.
type Sugared struct {
	s *zap.SugaredLogger
}

// NewSugared wraps l. A nil logger yields a no-op implementation.
func NewSugared(l *zap.Logger) *Sugared {
	if l == nil {
		l = zap.NewNop()
	}
	return &Sugared{s: l.Sugar()}
}

func (l *Sugared) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l *Sugared) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *Sugared) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *Sugared) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

// Sync flushes buffered entries.
func (l *Sugared) Sync() error { return l.s.Sync() }
