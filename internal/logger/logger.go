package logger

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"querygate/internal/config"
	"querygate/internal/model"
)

var (
	// Logger is the process-wide structured logger.
	Logger = zap.NewNop()
	// Sugar is the loosely-typed companion for simple call sites.
	Sugar = Logger.Sugar()
)

// Setup initializes the global loggers from config. Call once before the
// gateway starts serving.
func Setup(cfg config.LoggingConfig) error {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	var cores []zapcore.Core
	if cfg.ConsoleOutput {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		))
	}
	if cfg.FileOutput {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Path, "gateway.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			level,
		))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		))
	}

	Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	Sugar = Logger.Sugar()
	return nil
}

// SecurityEvent emits a structured security event for the audit sink.
// The gateway logs the event; storage and retention are a collaborator's job.
func SecurityEvent(event model.SecurityEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	Logger.Warn("security_event",
		zap.String("kind", event.Kind),
		zap.String("severity", event.Severity),
		zap.String("tenant_id", event.TenantID),
		zap.String("user_id", event.UserID),
		zap.String("message", event.Message),
		zap.Time("at", event.At),
	)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Logger.Sync()
}
