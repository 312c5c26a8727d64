// Package logging builds the zap logger shared by every component of a
// replica process.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TraceLevel sits one step below debug. It carries per-frame and
// per-transaction events.
const TraceLevel = zapcore.DebugLevel - 1

// Rotation defaults for file output
const (
	DefaultMaxSize    = 100 // MB
	DefaultMaxBackups = 10
	DefaultMaxAge     = 30 // days
)

// Config controls logger construction.
type Config struct {
	// Verbosity 0 logs info and above, 1 adds debug, 2 or more adds trace.
	Verbosity int

	// FilePath enables a rotated JSON log file in addition to stderr.
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool

	// NodeID is attached to every entry when non-empty.
	NodeID string

	// Output replaces stderr. Used by tests.
	Output zapcore.WriteSyncer
}

// LevelForVerbosity maps a -v count onto a zap level.
func LevelForVerbosity(v int) zapcore.Level {
	switch {
	case v <= 0:
		return zapcore.InfoLevel
	case v == 1:
		return zapcore.DebugLevel
	default:
		return TraceLevel
	}
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(LevelForVerbosity(cfg.Verbosity))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevel,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	out := cfg.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), out, level),
	}

	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSize, DefaultMaxSize),
			MaxBackups: orDefault(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAge, DefaultMaxAge),
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if cfg.NodeID != "" {
		logger = logger.With(zap.String("node_id", cfg.NodeID))
	}
	return logger, nil
}

// Trace logs msg at TraceLevel.
func Trace(l *zap.Logger, msg string, fields ...zap.Field) {
	if ce := l.Check(TraceLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
