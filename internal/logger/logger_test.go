package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSugaredForwardsLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewSugared(zap.New(core))

	l.Debug("d", "attempt", 1)
	l.Info("i")
	l.Warn("w")
	l.Error("e", "id", "app")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	want := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Fatalf("entry %d: level %v, want %v", i, e.Level, want[i])
		}
	}
	if got := entries[0].ContextMap()["attempt"]; got != int64(1) {
		t.Fatalf("expected attempt field, got %#v", got)
	}
	if got := entries[3].ContextMap()["id"]; got != "app" {
		t.Fatalf("expected id field, got %#v", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
		"bogus": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewAndNoop(t *testing.T) {
	if New("debug", FormatJSON) == nil || New("info", FormatConsole) == nil {
		t.Fatalf("expected logger")
	}
	var n Logger = Noop{}
	n.Debug("x")
	n.Info("x")
	n.Warn("x")
	n.Error("x")
	NewSugared(nil).Info("discarded")
}
