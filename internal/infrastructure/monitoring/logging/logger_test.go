package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerFromCore(core)

	logger.Info("model trained",
		String("bot_id", "b1"),
		Int("intents", 3),
		Bool("success", true),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Message != "model trained" {
		t.Fatalf("message = %q", entries[0].Message)
	}
	fields := entries[0].ContextMap()
	if fields["bot_id"] != "b1" {
		t.Fatalf("bot_id = %v", fields["bot_id"])
	}
	if fields["intents"] != int64(3) {
		t.Fatalf("intents = %v", fields["intents"])
	}
}

func TestWithAddsPersistentFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerFromCore(core).With(String("lang", "en"))

	logger.Warn("provider cooling down")

	fields := logs.All()[0].ContextMap()
	if fields["lang"] != "en" {
		t.Fatalf("lang = %v", fields["lang"])
	}
}

func TestErrFieldHandlesNil(t *testing.T) {
	f := Err(nil)
	if f.Key != "error" || f.Value != "<nil>" {
		t.Fatalf("Err(nil) = %+v", f)
	}
	f = Err(errors.New("boom"))
	if f.Value != "boom" {
		t.Fatalf("Err value = %v", f.Value)
	}
}

func TestNewLoggerBuildsForValidConfig(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		if _, err := NewLogger(Config{Level: "debug", Format: format}); err != nil {
			t.Fatalf("NewLogger(%s): %v", format, err)
		}
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	l := NewNopLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	l.With(String("a", "b")).Named("child").Info("x")
}

func TestDefaultLoggerSwap(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	core, logs := observer.New(zapcore.DebugLevel)
	SetDefault(NewLoggerFromCore(core))
	Default().Info("hello")
	if logs.Len() != 1 {
		t.Fatalf("got %d entries, want 1", logs.Len())
	}

	// nil is ignored.
	SetDefault(nil)
	if Default() == nil {
		t.Fatal("SetDefault(nil) cleared the default logger")
	}
}
