package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestPacer(t *testing.T, cfg Config) *Pacer {
	t.Helper()
	p, err := NewPacer(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPacer() error = %v", err)
	}
	return p
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MinDelay != time.Second || cfg.MaxDelay != 2*time.Second {
		t.Errorf("delay range = [%v, %v], want [1s, 2s]", cfg.MinDelay, cfg.MaxDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero delays", Config{ThrottleFactor: 1}, false},
		{"equal bounds", Config{MinDelay: time.Second, MaxDelay: time.Second, ThrottleFactor: 1}, false},
		{"inverted bounds", Config{MinDelay: 2 * time.Second, MaxDelay: time.Second, ThrottleFactor: 1}, true},
		{"negative min", Config{MinDelay: -time.Second, ThrottleFactor: 1}, true},
		{"factor below one", Config{ThrottleFactor: 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPacer_DelayWithinBounds(t *testing.T) {
	cfg := Config{MinDelay: 100 * time.Millisecond, MaxDelay: 200 * time.Millisecond, ThrottleCooldown: time.Minute, ThrottleFactor: 2}
	p := newTestPacer(t, cfg)

	for i := 0; i < 200; i++ {
		d := p.Delay()
		if d < cfg.MinDelay || d > cfg.MaxDelay {
			t.Fatalf("Delay() = %v, want within [%v, %v]", d, cfg.MinDelay, cfg.MaxDelay)
		}
	}
}

func TestPacer_ThrottleStretchesDelay(t *testing.T) {
	cfg := Config{MinDelay: 100 * time.Millisecond, MaxDelay: 100 * time.Millisecond, ThrottleCooldown: time.Minute, ThrottleFactor: 3}
	p := newTestPacer(t, cfg)

	p.Observe(200)
	p.Observe(503)
	if got := p.Delay(); got != 100*time.Millisecond {
		t.Errorf("Delay() before 429 = %v, want 100ms", got)
	}

	p.Observe(429)
	if got := p.Delay(); got != 300*time.Millisecond {
		t.Errorf("Delay() while throttled = %v, want 300ms", got)
	}

	state := p.State()
	if state.Throttles != 1 {
		t.Errorf("Throttles = %d, want 1", state.Throttles)
	}
}

func TestPacer_ThrottleCooldownEnds(t *testing.T) {
	cfg := Config{MinDelay: 100 * time.Millisecond, MaxDelay: 100 * time.Millisecond, ThrottleCooldown: time.Minute, ThrottleFactor: 2}
	p := newTestPacer(t, cfg)

	base := time.Now()
	p.now = func() time.Time { return base }
	p.Observe(429)

	p.now = func() time.Time { return base.Add(2 * time.Minute) }
	if got := p.Delay(); got != 100*time.Millisecond {
		t.Errorf("Delay() after cooldown = %v, want 100ms", got)
	}
}

func TestPacer_PauseSleeps(t *testing.T) {
	p := newTestPacer(t, Config{MinDelay: 30 * time.Millisecond, MaxDelay: 40 * time.Millisecond, ThrottleFactor: 1})

	start := time.Now()
	if err := p.Pause(context.Background()); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Pause() returned after %v, want >= 30ms", elapsed)
	}
}

func TestPacer_PauseCancelled(t *testing.T) {
	p := newTestPacer(t, Config{MinDelay: time.Hour, MaxDelay: time.Hour, ThrottleFactor: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Pause(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Pause() error = %v, want context.Canceled", err)
	}
}

func TestPacer_ZeroDelayReturnsImmediately(t *testing.T) {
	p := newTestPacer(t, Config{ThrottleFactor: 1})

	if err := p.Pause(context.Background()); err != nil {
		t.Errorf("Pause() error = %v", err)
	}
}
