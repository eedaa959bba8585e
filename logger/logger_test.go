package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHelpersAreNoopsWithoutLogger(t *testing.T) {
	prev := Replace(nil)
	defer Replace(prev)

	Info("nothing", String("k", "v"))
	Error("nothing", ErrorField(errors.New("boom")))
}

func TestHelpersWriteThroughReplacedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Replace(zap.New(core))
	defer Replace(prev)

	Debug("parse skipped", Path("/live/a.m3u8"))
	Warn("dispatch failed", Int("attempt", 2), ErrorField(errors.New("boom")))

	if logs.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", logs.Len())
	}
	first := logs.All()[0]
	if first.Message != "parse skipped" || first.ContextMap()["path"] != "/live/a.m3u8" {
		t.Fatalf("unexpected first entry %+v", first)
	}
	second := logs.All()[1]
	if second.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %v", second.Level)
	}
	if second.ContextMap()["error"] != "boom" {
		t.Fatalf("expected error field, got %v", second.ContextMap())
	}
}

func TestLogLevelMapping(t *testing.T) {
	cases := map[LogLevel]zapcore.Level{
		DebugLevel:      zapcore.DebugLevel,
		InfoLevel:       zapcore.InfoLevel,
		WarnLevel:       zapcore.WarnLevel,
		ErrorLevel:      zapcore.ErrorLevel,
		LogLevel("odd"): zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := in.zapLevel(); got != want {
			t.Fatalf("level %q: expected %v, got %v", in, want, got)
		}
	}
}
