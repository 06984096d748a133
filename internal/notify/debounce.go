package notify

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Debouncer suppresses duplicate pushes of the same logical event inside a
// short window. Meta redelivers webhooks aggressively on slow responses,
// which would otherwise double-notify every dashboard.
type Debouncer struct {
	cache  *gocache.Cache
	window time.Duration
}

// NewDebouncer creates a debouncer with the given suppression window.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = 300 * time.Millisecond
	}
	return &Debouncer{
		cache:  gocache.New(window, time.Minute),
		window: window,
	}
}

// Allow reports whether the key has not been seen inside the window, and
// marks it seen. The first caller for a key wins; concurrent callers for the
// same key are serialized by the cache.
func (d *Debouncer) Allow(key string) bool {
	return d.cache.Add(key, struct{}{}, d.window) == nil
}
