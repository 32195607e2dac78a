package ratelimit

import (
	"testing"
	"time"
)

func TestThrottleState_IsThrottled(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		state    ThrottleState
		expected bool
	}{
		{
			name:     "zero state",
			state:    ThrottleState{},
			expected: false,
		},
		{
			name:     "cooldown running",
			state:    ThrottleState{Until: now.Add(30 * time.Second)},
			expected: true,
		},
		{
			name:     "cooldown over",
			state:    ThrottleState{Until: now.Add(-time.Second)},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsThrottled(now); got != tt.expected {
				t.Errorf("IsThrottled() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestThrottleState_Remaining(t *testing.T) {
	now := time.Now()

	if got := (ThrottleState{Until: now.Add(10 * time.Second)}).Remaining(now); got != 10*time.Second {
		t.Errorf("Remaining() = %v, want 10s", got)
	}
	if got := (ThrottleState{Until: now.Add(-10 * time.Second)}).Remaining(now); got != 0 {
		t.Errorf("Remaining() = %v, want 0", got)
	}
}
