package cache

import (
	"net/http"
	"strings"
)

// Cacheable reports whether a response may be stored.
// Only 200 responses without Cache-Control: no-store qualify.
func Cacheable(status int, header http.Header) bool {
	if status != http.StatusOK {
		return false
	}
	for _, directive := range strings.Split(header.Get("Cache-Control"), ",") {
		if strings.EqualFold(strings.TrimSpace(directive), "no-store") {
			return false
		}
	}
	return true
}
