package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTarget_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No target set
	if tgt := Target(ctx); tgt != "" {
		t.Errorf("expected empty target, got %q", tgt)
	}

	// Set and retrieve
	ctx = WithTarget(ctx, "BTC-USDT/1m")
	if tgt := Target(ctx); tgt != "BTC-USDT/1m" {
		t.Errorf("expected 'BTC-USDT/1m', got %q", tgt)
	}
}

func TestLogWithTarget(t *testing.T) {
	ctx := context.Background()

	// No target
	attrs := LogWithTarget(ctx)
	if attrs != nil {
		t.Errorf("expected nil attrs when no target, got %v", attrs)
	}

	// With target set
	ctx = WithTarget(ctx, "ETH-USDT/5m")
	attrs = LogWithTarget(ctx)
	if len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with target set")
	}
}
