// Package ratelimit implements the politeness pacing applied between problems.
// Workers pause for a randomized interval after talking to the origin; when
// the origin starts answering 429 the pacer stretches that interval for a
// cool-down window.
package ratelimit

import (
	"time"
)

// ThrottleState is the pacer's view of origin pushback.
type ThrottleState struct {
	// Throttles counts 429 responses seen since the pacer was created.
	Throttles int `json:"throttles"`

	// LastThrottle is when the most recent 429 was observed.
	LastThrottle time.Time `json:"last_throttle"`

	// Until is when the throttled state ends.
	Until time.Time `json:"until"`
}

// IsThrottled reports whether delays should be stretched at now.
func (s ThrottleState) IsThrottled(now time.Time) bool {
	return now.Before(s.Until)
}

// Remaining returns the time left in the throttled state.
// Returns 0 if the state has already ended.
func (s ThrottleState) Remaining(now time.Time) time.Duration {
	d := s.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
