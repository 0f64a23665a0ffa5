package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLogger_NoopBeforeInitialize(t *testing.T) {
	if Logger == nil {
		t.Fatal("logger should never be nil")
	}
	// Must not panic.
	Logger.Debugw("hello", "k", "v")
}

func TestInitialize(t *testing.T) {
	orig := Logger
	defer func() { Logger = orig }()

	for _, tt := range []struct {
		verbose, json bool
	}{
		{false, false},
		{true, false},
		{false, true},
		{true, true},
	} {
		if err := Initialize(tt.verbose, tt.json); err != nil {
			t.Fatalf("Initialize(%v, %v): %v", tt.verbose, tt.json, err)
		}
		if Logger == nil {
			t.Fatalf("Initialize(%v, %v): nil logger", tt.verbose, tt.json)
		}
		if got := Logger.Desugar().Core().Enabled(zapcore.DebugLevel); got != tt.verbose {
			t.Errorf("Initialize(%v, %v): debug enabled = %v", tt.verbose, tt.json, got)
		}
	}
}
