package cache

import (
	"net/http"
	"testing"
)

func TestCacheable(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		cacheControl string
		want         bool
	}{
		{"ok", 200, "", true},
		{"ok with max-age", 200, "public, max-age=600", true},
		{"no-store", 200, "no-store", false},
		{"no-store among directives", 200, "private, No-Store", false},
		{"not found", 404, "", false},
		{"server error", 503, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.cacheControl != "" {
				h.Set("Cache-Control", tt.cacheControl)
			}
			if got := Cacheable(tt.status, h); got != tt.want {
				t.Errorf("Cacheable(%d, %q) = %v, want %v", tt.status, tt.cacheControl, got, tt.want)
			}
		})
	}
}
