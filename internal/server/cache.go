package server

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/mj1618/abivis/internal/logging"
	"github.com/mj1618/abivis/internal/toolchain"
)

// cacheEntry holds probed signals with their timestamp.
type cacheEntry struct {
	signals   toolchain.Signals
	timestamp time.Time
}

// ProbeCache is a toolchain.Prober that remembers probe results for a TTL,
// keyed by the full compiler command line. Failed probes are not cached.
type ProbeCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	prober  toolchain.Prober
}

// NewProbeCache wraps prober. A ttl of 0 disables caching.
func NewProbeCache(prober toolchain.Prober, ttl time.Duration) *ProbeCache {
	return &ProbeCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		prober:  prober,
	}
}

// Probe returns cached signals if within TTL, otherwise probes fresh.
func (c *ProbeCache) Probe(ctx context.Context, compiler toolchain.Compiler) (toolchain.Signals, error) {
	if c.ttl == 0 {
		return c.prober.Probe(ctx, compiler)
	}

	key := compiler.String()

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && time.Since(entry.timestamp) < c.ttl {
		signals := maps.Clone(entry.signals)
		c.mu.Unlock()
		logging.Logger.Debugw("probe cache hit", "compiler", key)
		return signals, nil
	}
	c.mu.Unlock()

	signals, err := c.prober.Probe(ctx, compiler)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Callers own what they get back; the cache keeps its own copy.
	c.entries[key] = cacheEntry{signals: maps.Clone(signals), timestamp: time.Now()}
	c.mu.Unlock()

	return signals, nil
}

// Invalidate removes the entry for one compiler.
func (c *ProbeCache) Invalidate(compiler toolchain.Compiler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, compiler.String())
}

// Len returns the number of cached entries, expired or not.
func (c *ProbeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
