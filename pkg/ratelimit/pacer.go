package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for politeness pacing.
var (
	pausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_politeness_pauses_total",
		Help: "Total number of politeness pauses taken by workers",
	})

	pauseSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_politeness_pause_seconds",
		Help:    "Politeness pause duration in seconds",
		Buckets: []float64{0.25, 0.5, 1, 1.5, 2, 3, 5},
	})

	throttleEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_politeness_throttle_events_total",
		Help: "Total number of 429 responses that stretched politeness pauses",
	})
)

// Config holds pacer configuration.
type Config struct {
	// MinDelay and MaxDelay bound the uniform random pause.
	MinDelay time.Duration
	MaxDelay time.Duration

	// ThrottleCooldown is how long a 429 keeps the pacer throttled.
	ThrottleCooldown time.Duration

	// ThrottleFactor multiplies pauses while throttled.
	ThrottleFactor float64
}

// DefaultConfig returns the default 1–2 s pacing.
func DefaultConfig() Config {
	return Config{
		MinDelay:         1 * time.Second,
		MaxDelay:         2 * time.Second,
		ThrottleCooldown: 60 * time.Second,
		ThrottleFactor:   2.0,
	}
}

// Validate checks the pacer configuration.
func (c Config) Validate() error {
	if c.MinDelay < 0 {
		return fmt.Errorf("politeness min delay must not be negative (got %v)", c.MinDelay)
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("politeness max delay %v is below min delay %v", c.MaxDelay, c.MinDelay)
	}
	if c.ThrottleFactor < 1 {
		return fmt.Errorf("politeness throttle factor must be >= 1 (got %v)", c.ThrottleFactor)
	}
	return nil
}

// Pacer spaces out requests across all workers. It is safe for concurrent use.
type Pacer struct {
	config Config
	logger zerolog.Logger

	mu    sync.Mutex
	state ThrottleState
	now   func() time.Time
}

// NewPacer creates a new pacer.
func NewPacer(cfg Config, logger zerolog.Logger) (*Pacer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pacer{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Observe records an origin status. A 429 starts or extends the throttled state.
func (p *Pacer) Observe(statusCode int) {
	if statusCode != http.StatusTooManyRequests {
		return
	}

	p.mu.Lock()
	now := p.now()
	wasThrottled := p.state.IsThrottled(now)
	p.state.Throttles++
	p.state.LastThrottle = now
	p.state.Until = now.Add(p.config.ThrottleCooldown)
	throttles := p.state.Throttles
	p.mu.Unlock()

	throttleEventsTotal.Inc()
	if !wasThrottled {
		p.logger.Warn().
			Int("throttles", throttles).
			Dur("cooldown", p.config.ThrottleCooldown).
			Msg("Origin is rate limiting - stretching politeness pauses")
	}
}

// State returns a snapshot of the throttle state.
func (p *Pacer) State() ThrottleState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Delay draws the next pause length.
func (p *Pacer) Delay() time.Duration {
	d := p.config.MinDelay
	if span := p.config.MaxDelay - p.config.MinDelay; span > 0 {
		d += time.Duration(rand.Int63n(int64(span + 1)))
	}

	p.mu.Lock()
	throttled := p.state.IsThrottled(p.now())
	p.mu.Unlock()

	if throttled {
		d = time.Duration(float64(d) * p.config.ThrottleFactor)
	}
	return d
}

// Pause sleeps for Delay or until ctx is done.
func (p *Pacer) Pause(ctx context.Context) error {
	d := p.Delay()
	if d <= 0 {
		return nil
	}

	pausesTotal.Inc()
	pauseSeconds.Observe(d.Seconds())

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
