package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"arena-token-ledger/internal/config"
)

func TestNew(t *testing.T) {
	log, err := New(config.LogConfig{Level: "DEBUG", Encoding: "json", Sampling: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug level enabled")
	}
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := New(config.LogConfig{Level: "loud", Encoding: "unknown"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug level disabled")
	}
	if !log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("expected info level enabled")
	}
}
