// Package cache provides an in-process TTL cache for expensive reads.
//
// Values are serialized to JSON on the way in and deserialized on the way
// out, so callers always work with private copies: mutating a value after
// Set, or after Get returns it, never affects what the cache holds.
// Expired entries are reclaimed two ways: lazily, when a lookup touches
// them, and periodically by a background sweeper.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ErrInvalidKey indicates a cache operation was attempted with an empty key.
var ErrInvalidKey = errors.New("cache key cannot be empty")

// Default cache settings
const (
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Key builds a namespaced cache key, e.g. Key("tasks", id.String()).
// Namespacing keeps unrelated callers from colliding in the shared store.
func Key(namespace string, parts ...string) string {
	if len(parts) == 0 {
		return namespace
	}
	return namespace + ":" + strings.Join(parts, ":")
}

// Config holds the cache settings.
type Config struct {
	// DefaultTTL applies to Set calls that pass a non-positive TTL.
	DefaultTTL time.Duration

	// SweepInterval is how often the background sweeper reclaims
	// expired entries.
	SweepInterval time.Duration
}

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// Cache is a concurrency-safe TTL cache keyed by string.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	config  Config
	now     func() time.Time
	logger  *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option customizes Cache construction.
type Option func(*Cache)

// WithClock overrides the cache's time source. Used in tests to control
// expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a Cache. Zero config values fall back to the package
// defaults.
func New(config Config, logger *slog.Logger, opts ...Option) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		entries: make(map[string]entry),
		config:  config,
		now:     time.Now,
		logger:  logger.With("component", "cache"),
		stopCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores a copy of value under key. A non-positive ttl falls back to
// the configured default. Expiry is absolute: it is fixed at Set time and
// not extended by reads.
func (c *Cache) Set(key string, value any, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize cache value for key %q: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		payload:   payload,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Get looks up key and, when present and unexpired, deserializes the
// stored value into dest. The boolean reports whether a live entry was
// found. An expired entry is removed as a side effect of the lookup.
func (c *Cache) Get(key string, dest any) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		cacheEvictions.Inc()
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		cacheMisses.Inc()
		return false, nil
	}

	if err := json.Unmarshal(e.payload, dest); err != nil {
		return false, fmt.Errorf("failed to deserialize cache value for key %q: %w", key, err)
	}

	cacheHits.Inc()
	return true, nil
}

// Has reports whether a live entry exists for key. Like Get, it removes
// an expired entry as a side effect, and an empty key never has an entry.
func (c *Cache) Has(key string) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		cacheEvictions.Inc()
		return false
	}
	return true
}

// Delete removes the entry for key, reporting whether one existed.
// Expired-but-unswept entries count as existing.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of stored entries, including expired ones the
// sweeper has not yet reclaimed.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartSweeper launches the background goroutine that periodically
// reclaims expired entries.
func (c *Cache) StartSweeper() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()

	c.logger.Debug("cache sweeper started", "interval", c.config.SweepInterval)
}

// Stop terminates the background sweeper and waits for it to exit.
// Safe to call only once.
func (c *Cache) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		cacheEvictions.Add(float64(removed))
		c.logger.Debug("cache sweep reclaimed entries",
			"removed", removed,
			"remaining", len(c.entries))
	}
}
