// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI colors used by the console encoder.
const (
	colorReset = "\x1b[0m"
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
	colorBlue  = "\x1b[34m"
)

// Config selects the logger flavour.
type Config struct {
	// Verbose enables logging at all; a quiet logger discards everything.
	Verbose bool `mapstructure:"verbose"`
	// JSON switches from colorized console lines to production JSON.
	JSON bool `mapstructure:"json"`
	// Level is the minimum level, "debug" when empty.
	Level string `mapstructure:"level"`
}

// New builds a zap.Logger for cfg. Console output colors progress lines
// (debug) blue, successes (info) green and problems (warn and above) red.
func New(cfg Config) (*zap.Logger, error) {
	if !cfg.Verbose {
		return zap.NewNop(), nil
	}
	level := zapcore.DebugLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	if cfg.JSON {
		prod := zap.NewProductionConfig()
		prod.Level = zap.NewAtomicLevelAt(level)
		prod.EncoderConfig.TimeKey = "ts"
		logger, err := prod.Build()
		if err != nil {
			return nil, fmt.Errorf("build json logger: %w", err)
		}
		return logger, nil
	}

	dev := zap.NewDevelopmentConfig()
	dev.Level = zap.NewAtomicLevelAt(level)
	dev.OutputPaths = []string{"stdout"}
	dev.EncoderConfig.TimeKey = "ts"
	dev.EncoderConfig.EncodeLevel = ColorLevelEncoder
	dev.DisableStacktrace = true
	logger, err := dev.Build()
	if err != nil {
		return nil, fmt.Errorf("build console logger: %w", err)
	}
	return logger, nil
}

// ColorLevelEncoder writes the capitalized level name wrapped in its color.
func ColorLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(levelColor(l) + l.CapitalString() + colorReset)
}

func levelColor(l zapcore.Level) string {
	switch {
	case l == zapcore.DebugLevel:
		return colorBlue
	case l == zapcore.InfoLevel:
		return colorGreen
	case l >= zapcore.WarnLevel:
		return colorRed
	default:
		return colorReset
	}
}
