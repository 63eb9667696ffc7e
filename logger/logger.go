package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProdStage selects JSON structured logging.
const ProdStage = "prod"

var (
	// Log is the global logger instance
	Log = zap.NewNop()
)

// InitLogger initializes the global logger for the given stage.
// The level is read from LOG_LEVEL and defaults to info.
func InitLogger(stage string) {
	logger, err := New(stage, os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	// Set global logger
	Log = logger
}

// New builds a logger for stage at the named level.
func New(stage, levelName string) (*zap.Logger, error) {
	level := parseLevel(levelName)

	var zapConfig zap.Config
	if stage == ProdStage {
		// Production config - JSON structured logging
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.MessageKey = "message"
		zapConfig.InitialFields = map[string]interface{}{
			"service": "erc20-paymaster",
			"stage":   stage,
		}
	} else {
		// Development config - human-readable console logging
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.DisableStacktrace = stage == ProdStage && level > zapcore.DebugLevel

	return zapConfig.Build()
}

func parseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Info logs a message at InfoLevel
func Info(msg string, fields ...zapcore.Field) {
	Log.Info(msg, fields...)
}

// Warn logs a message at WarnLevel
func Warn(msg string, fields ...zapcore.Field) {
	Log.Warn(msg, fields...)
}

// Error logs a message at ErrorLevel
func Error(msg string, fields ...zapcore.Field) {
	Log.Error(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync()
}

// Debug logs a message at DebugLevel
func Debug(msg string, fields ...zapcore.Field) {
	Log.Debug(msg, fields...)
}

// With returns a child of the global logger carrying fields
func With(fields ...zapcore.Field) *zap.Logger {
	return Log.With(fields...)
}

// StageFromGinMode maps GIN_MODE to a logger stage.
func StageFromGinMode(mode string) string {
	if mode == "release" {
		return ProdStage
	}
	return "dev"
}
