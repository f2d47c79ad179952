package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, encoding and output of the process logger.
type Options struct {
	Level    string `yaml:"level"`  // debug/info/warn/error
	Format   string `yaml:"format"` // console/json
	File     string `yaml:"file"`   // empty: stdout only
	MaxSizeM int    `yaml:"max_size_mb"`
	MaxFiles int    `yaml:"max_files"`
	MaxAgeD  int    `yaml:"max_age_days"`
}

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(build(Options{Level: "debug", Format: "console"}))
}

// Init replaces the process logger. Safe to call once at startup.
func Init(opts Options) *zap.Logger {
	l := build(opts)
	current.Store(l)
	return l
}

func build(opts Options) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.CapitalColorLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}

	var enc zapcore.Encoder
	if strings.EqualFold(opts.Format, "json") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	sink := zapcore.AddSync(os.Stdout)
	if opts.File != "" {
		rotate := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeM,
			MaxBackups: opts.MaxFiles,
			MaxAge:     opts.MaxAgeD,
			Compress:   true,
		}
		sink = zapcore.NewMultiWriteSyncer(sink, zapcore.AddSync(rotate))
	}

	core := zapcore.NewCore(enc, sink, parseLevel(opts.Level))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// L returns the process logger.
func L() *zap.Logger { return current.Load() }

// Named returns a child of the process logger.
func Named(name string) *zap.Logger { return L().Named(name) }

func Sync() { _ = L().Sync() }

// shortcuts
func Info(msg string, fields ...zap.Field) { L().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...) }
func Infof(format string, args ...interface{}) {
	L().WithOptions(zap.AddCallerSkip(1)).Info(fmt.Sprintf(format, args...))
}
func Warn(msg string, fields ...zap.Field)  { L().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...) }

func Errorf(format string, args ...interface{}) {
	L().WithOptions(zap.AddCallerSkip(1)).Error(fmt.Sprintf(format, args...))
}

func Debug(msg string, fields ...zap.Field) { L().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...) }
