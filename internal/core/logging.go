package core

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLogLevel parses debug, info, warn or error.
func ParseLogLevel(level string) (zapcore.Level, error) {
	value := strings.ToLower(strings.TrimSpace(level))
	if value == "" {
		return zapcore.WarnLevel, nil
	}
	parsed, err := zapcore.ParseLevel(value)
	if err != nil {
		return zapcore.WarnLevel, fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", level)
	}
	return parsed, nil
}

// NewLogger builds a console logger writing to stderr.
func NewLogger(level string) (*zap.Logger, error) {
	parsed, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(parsed)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.DisableStacktrace = true
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return config.Build()
}
