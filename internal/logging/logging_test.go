package logging

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestDiscardDropsEverything(t *testing.T) {
	logger := Discard()
	// Must not panic and must report disabled at every level.
	logger.Debug("dropped")
	logger.Error("dropped")
	if logger.Enabled(t.Context(), slog.LevelError) {
		t.Error("discard logger claims to be enabled")
	}
}

func TestDefaultFallsBack(t *testing.T) {
	if Default(nil) == nil {
		t.Fatal("Default(nil) returned nil")
	}

	var buf bytes.Buffer
	real := slog.New(slog.NewTextHandler(&buf, nil))
	got := Default(real)
	if got != real {
		t.Error("Default did not pass through the provided logger")
	}
	got.Info("visible")
	if buf.Len() == 0 {
		t.Error("passed-through logger produced no output")
	}
}
