// Package cache provides a content-addressed, time-bounded memo of
// deterministic LLM completions.
//
// Only low-temperature requests are cached: above the eligibility
// threshold provider sampling varies enough that a memoized answer would
// be misleading. Entries are evicted lazily on expired reads; there is
// no background sweeper.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xynenyx/relay/internal/provider"
)

// EligibilityThreshold is the highest temperature treated as
// reproducible. Requests above it are never cached or served.
const EligibilityThreshold = 0.3

// DefaultTTL bounds entry lifetime when config names none.
const DefaultTTL = time.Hour

type entry struct {
	completion provider.Completion
	createdAt  time.Time
}

// Cache memoizes completions keyed by a fingerprint of the conversation
// and temperature. Safe for concurrent readers and writers; racing
// identical requests may still each call upstream once (last write
// wins), which is acceptable.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates a cache with the given entry TTL.
func New(ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// key derives the fingerprint for a request. The canonical form fixes
// field order and keeps message order significant, so reordering
// messages or changing any role/content/temperature changes the key.
// The second return is false for cache-ineligible requests.
func (c *Cache) key(messages []provider.Message, temperature float64) (string, bool) {
	if temperature > EligibilityThreshold {
		return "", false
	}

	payload := struct {
		Messages    []provider.Message `json:"messages"`
		Temperature float64            `json:"temperature"`
	}{
		Messages:    messages,
		Temperature: temperature,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", false
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}

// Get returns the cached completion for an identical prior request, or
// false when the request is ineligible, unknown, or expired. Expired
// entries are deleted on read.
func (c *Cache) Get(messages []provider.Message, temperature float64) (*provider.Completion, bool) {
	key, ok := c.key(messages, temperature)
	if !ok {
		return nil, false
	}

	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found {
		return nil, false
	}

	if c.now().Sub(e.createdAt) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry.
		if cur, still := c.entries[key]; still && c.now().Sub(cur.createdAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	completion := e.completion
	return &completion, true
}

// Set stores a completion. No-op for ineligible requests; otherwise the
// entry is inserted or overwritten unconditionally.
func (c *Cache) Set(messages []provider.Message, completion provider.Completion, temperature float64) {
	key, ok := c.key(messages, temperature)
	if !ok {
		return
	}

	c.mu.Lock()
	c.entries[key] = entry{
		completion: completion,
		createdAt:  c.now(),
	}
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	c.logger.Info().Msg("Completion cache cleared")
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
