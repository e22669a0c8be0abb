// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestNewVerboseLogger confirms the console logger builds and logs.
func TestNewVerboseLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Verbose: true})
	if err != nil {
		t.Fatalf("New(verbose) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled by default")
	}
	logger.Debug("console logger ready")
}

// TestNewJSONLogger ensures the production logger configuration succeeds.
func TestNewJSONLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Verbose: true, JSON: true, Level: "warn"})
	if err != nil {
		t.Fatalf("New(json) error = %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info to be filtered at warn level")
	}
}

// TestNewQuietLogger checks non-verbose mode discards everything.
func TestNewQuietLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{})
	if err != nil {
		t.Fatalf("New(quiet) error = %v", err)
	}
	if logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatal("expected quiet logger to drop every level")
	}
}

// TestNewRejectsUnknownLevel surfaces level typos.
func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Verbose: true, Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

// TestColorLevelEncoder pins the level colors.
func TestColorLevelEncoder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level zapcore.Level
		want  string
	}{
		{zapcore.DebugLevel, colorBlue + "DEBUG" + colorReset},
		{zapcore.InfoLevel, colorGreen + "INFO" + colorReset},
		{zapcore.WarnLevel, colorRed + "WARN" + colorReset},
		{zapcore.ErrorLevel, colorRed + "ERROR" + colorReset},
	}
	for _, tc := range tests {
		enc := &captureEncoder{}
		ColorLevelEncoder(tc.level, enc)
		if len(enc.values) != 1 || enc.values[0] != tc.want {
			t.Fatalf("level %v encoded as %q, want %q", tc.level, enc.values, tc.want)
		}
	}
}

type captureEncoder struct {
	zapcore.PrimitiveArrayEncoder
	values []string
}

func (c *captureEncoder) AppendString(v string) {
	c.values = append(c.values, v)
}
