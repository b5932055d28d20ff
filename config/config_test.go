package config

import (
	"testing"
	"time"

	"market-feedv1/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Symbol != "BTC-USDT" || cfg.Interval != "1m" {
		t.Fatalf("unexpected default target: %s/%s", cfg.Symbol, cfg.Interval)
	}
	if cfg.ThrottleMs != 100 {
		t.Fatalf("default throttle = %d, want 100", cfg.ThrottleMs)
	}
	if err := cfg.Target().Validate(); err != nil {
		t.Fatalf("default target invalid: %v", err)
	}
}

func TestEndpointsFromEnvList(t *testing.T) {
	t.Setenv("WS_URLS", "wss://a.example/ws/v5/business, wss://b.example/ws/v5/public,")
	cfg := Load()
	eps := cfg.Endpoints()
	if len(eps) != 2 {
		t.Fatalf("parsed %d endpoints, want 2", len(eps))
	}
	if eps[0].Variant != model.VariantBusiness {
		t.Errorf("first endpoint variant = %v, want business", eps[0].Variant)
	}
	if eps[1].Variant != model.VariantPublic {
		t.Errorf("second endpoint variant = %v, want public", eps[1].Variant)
	}
}

func TestEndpointsDefaultRotation(t *testing.T) {
	cfg := &Config{}
	eps := cfg.Endpoints()
	if len(eps) != 6 {
		t.Fatalf("default rotation has %d endpoints, want 6", len(eps))
	}
	// Business endpoints come first in the rotation.
	if eps[0].Variant != model.VariantBusiness {
		t.Errorf("first default endpoint is %v, want business", eps[0].Variant)
	}
}

func TestThrottleWindow(t *testing.T) {
	if w := (&Config{ThrottleMs: 250}).ThrottleWindow(); w != 250*time.Millisecond {
		t.Errorf("window = %v, want 250ms", w)
	}
	if w := (&Config{ThrottleMs: 0}).ThrottleWindow(); w != 100*time.Millisecond {
		t.Errorf("zero config window = %v, want 100ms fallback", w)
	}
}

func TestGetEnvIntFallback(t *testing.T) {
	t.Setenv("MAX_RECONNECT_ATTEMPTS", "not-a-number")
	cfg := Load()
	if cfg.MaxReconnectAttempts != 0 {
		t.Fatalf("invalid int env should fall back, got %d", cfg.MaxReconnectAttempts)
	}
}
