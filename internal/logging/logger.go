// Package logging defines the narrow Logger interface used throughout the
// dialer core and a zap-backed implementation. The retrieval pack's
// pkg/commons.Logger (referenced by the teacher) was not included in the
// pack, so this repo re-declares it in the teacher's shape.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the dialer-wide structured logging surface. Every component
// takes one of these instead of reaching for the global zap logger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	z *zap.SugaredLogger
}

// Options configures file rotation; zero value logs to stdout only.
type Options struct {
	Level      string // debug|info|warn|error
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a zap-backed Logger. When opts.FilePath is set, output is
// teed through lumberjack for rotation; otherwise it writes to stdout.
func New(opts Options) Logger {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(opts.Level))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var ws zapcore.WriteSyncer
	if opts.FilePath != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		})
	} else {
		ws = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, ws, level)
	z := zap.New(core, zap.AddCaller())
	return &zapLogger{z: z.Sugar()}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *zapLogger) Debugf(format string, args ...interface{}) { l.z.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.z.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.z.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.z.Errorf(format, args...) }

func (l *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{z: l.z.Desugar().With(fields...).Sugar()}
}

// Noop is a Logger that discards everything, handy for tests.
type Noop struct{}

func (Noop) Debugf(string, ...interface{}) {}
func (Noop) Infof(string, ...interface{})  {}
func (Noop) Warnf(string, ...interface{})  {}
func (Noop) Errorf(string, ...interface{}) {}
func (n Noop) With(...zap.Field) Logger    { return n }
