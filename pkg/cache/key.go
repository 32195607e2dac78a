package cache

import (
	"net/url"
	"strings"
)

// KeyPrefix namespaces all page cache keys in Redis.
const KeyPrefix = "bongard:page"

// CacheKey identifies a cached page.
type CacheKey struct {
	// URL is the absolute page URL
	URL string
}

// String generates a deterministic cache key string.
// The scheme and host are lower-cased and the fragment dropped, so
// equivalent URLs share an entry.
//
// Example:
//
//	bongard:page:https://oebp.org/BP12
func (k CacheKey) String() string {
	raw := strings.TrimSpace(k.URL)
	u, err := url.Parse(raw)
	if err != nil {
		return KeyPrefix + ":" + raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return KeyPrefix + ":" + u.String()
}
