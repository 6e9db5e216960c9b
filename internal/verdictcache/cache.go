// Package verdictcache implements the Layer-0 verdict cache (C3): a
// bounded, TTL-expiring map from hash(ip, payload) to a verdict. Only
// verdict metadata is ever stored — never response bytes — so a cache
// read can't be replayed to predict what bytes Layer 0 will send.
//
// The cache is generic over the verdict type so this package stays a
// leaf: it knows nothing about the orchestrator's types and the
// orchestrator instantiates Cache with its own Verdict.
package verdictcache

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	verdict    V
	insertedAt time.Time
}

// Cache is a bounded, mutex-protected verdict store. The eviction
// scan is bounded by the underlying LRU's O(1) accounting; the only
// O(max_size) work is the LRU's own internal bookkeeping, never a
// linear scan driven by this package.
type Cache[V any] struct {
	mu      sync.Mutex
	entries *lru.Cache[uint64, entry[V]]
	ttl     time.Duration
	now     func() time.Time
}

// New creates a verdict cache bounded at maxSize entries, with entries
// expiring ttl after insertion.
func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	store, err := lru.New[uint64, entry[V]](maxSize)
	if err != nil {
		// Only possible failure is a non-positive size, guarded above.
		panic(err)
	}
	return &Cache[V]{
		entries: store,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key derives the stable 64-bit cache key for a (source IP, payload)
// pair. xxhash gives a fast, well-distributed, allocation-light digest
// over the concatenated bytes without needing a cryptographic hash.
func Key(ip string, payload []byte) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(ip)
	_, _ = h.Write([]byte{0}) // separator so "1.2.3.4" + "5" != "1.2.3.45" with empty payload
	_, _ = h.Write(payload)
	return h.Sum64()
}

// Get returns the stored verdict for key, iff it exists and is not
// older than the configured TTL. A stale entry found during the
// lookup is evicted lazily — the cache never returns expired data.
func (c *Cache[V]) Get(key uint64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Peek, not Get: a read must not refresh the entry's LRU position,
	// so eviction order stays insertion order (see Set).
	e, ok := c.entries.Peek(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		c.entries.Remove(key)
		var zero V
		return zero, false
	}
	return e.verdict, true
}

// Set stores verdict under key with the current timestamp. If the
// cache is already at capacity, the LRU evicts its least-recently-used
// entry. Only Set moves an entry to the front (Get uses Peek), so that
// is the entry with the smallest insertion timestamp, found without a
// linear scan.
func (c *Cache[V]) Set(key uint64, verdict V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(key, entry[V]{verdict: verdict, insertedAt: c.now()})
}

// Len returns the current number of live entries (including any not
// yet lazily expired).
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
