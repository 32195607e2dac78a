package cache

import (
	"net/http"
	"time"
)

// CacheEntry represents a cached page response.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag as sent by the origin, kept for diagnosis
	ETag string `json:"etag,omitempty"`

	// ContentType of the cached body
	ContentType string `json:"content_type,omitempty"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Expires is when the cache entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry builds an entry that expires ttl from now.
func NewEntry(status int, header http.Header, body []byte, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:        body,
		ETag:        header.Get("ETag"),
		ContentType: header.Get("Content-Type"),
		StatusCode:  status,
		Expires:     now.Add(ttl),
		CachedAt:    now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Header rebuilds the response headers stored with the entry.
func (e *CacheEntry) Header() http.Header {
	h := http.Header{}
	if e.ETag != "" {
		h.Set("ETag", e.ETag)
	}
	if e.ContentType != "" {
		h.Set("Content-Type", e.ContentType)
	}
	h.Set("X-Cache", "HIT")
	return h
}
