// Package signature implements the thinking-block signature lifecycle:
// SignatureCache (C5, in-memory TTL+LRU with pluggable persistent backend)
// and SignatureStore (C6, persistent project-scoped admissibility registry).
package signature

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/soilSpoon/llmux/internal/domain/signature/storage"
)

// MinSignatureLength is the shortest signature Cache.Store will accept;
// shorter values are treated as noise and ignored.
const MinSignatureLength = 50

// DefaultMaxEntriesPerSession is the per-session LRU capacity.
const DefaultMaxEntriesPerSession = 100

// DefaultTTL is the in-memory entry lifetime.
const DefaultTTL = time.Hour

// CacheKey identifies one cached signature: (sessionId, modelFamily, textHash).
type CacheKey struct {
	SessionID   string
	ModelFamily string
	TextHash    string
}

func (k CacheKey) composite() string {
	return k.ModelFamily + "|" + k.TextHash
}

// TextHash returns the stable content-addressed hash of thinking text used
// as the third component of a CacheKey.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	signature string
	family    string
	sessionID string
	timestamp time.Time
	elem      *list.Element // position in that session's LRU list
}

// sessionBucket is one session's LRU-ordered entry set.
type sessionBucket struct {
	order   *list.List // front = most recently used; elem.Value = compositeKey
	entries map[string]*cacheEntry
}

// Cache is the in-memory per-session LRU+TTL signature cache (C5), with an
// optional persistent backend consulted on miss.
type Cache struct {
	mu       sync.Mutex
	sessions map[string]*sessionBucket
	capacity int
	ttl      time.Duration
	clock    func() time.Time
	backend  storage.SignatureStorage
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithCapacity overrides DefaultMaxEntriesPerSession.
func WithCapacity(n int) CacheOption {
	return func(c *Cache) { c.capacity = n }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithBackend attaches a persistent storage.SignatureStorage backend,
// consulted on memory miss and written through on every store.
func WithBackend(backend storage.SignatureStorage) CacheOption {
	return func(c *Cache) { c.backend = backend }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(clock func() time.Time) CacheOption {
	return func(c *Cache) { c.clock = clock }
}

// NewCache constructs an empty Cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		sessions: make(map[string]*sessionBucket),
		capacity: DefaultMaxEntriesPerSession,
		ttl:      DefaultTTL,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store records signature for key, ignoring signatures shorter than
// MinSignatureLength. LRU eviction applies at per-session capacity. If a
// persistent backend is configured it is written through synchronously.
func (c *Cache) Store(key CacheKey, sig string) error {
	if len(sig) < MinSignatureLength {
		return nil
	}

	c.mu.Lock()
	bucket, ok := c.sessions[key.SessionID]
	if !ok {
		bucket = &sessionBucket{order: list.New(), entries: make(map[string]*cacheEntry)}
		c.sessions[key.SessionID] = bucket
	}

	composite := key.composite()
	now := c.clock()
	if existing, ok := bucket.entries[composite]; ok {
		existing.signature = sig
		existing.timestamp = now
		bucket.order.MoveToFront(existing.elem)
	} else {
		elem := bucket.order.PushFront(composite)
		bucket.entries[composite] = &cacheEntry{
			signature: sig,
			family:    key.ModelFamily,
			sessionID: key.SessionID,
			timestamp: now,
			elem:      elem,
		}
		for bucket.order.Len() > c.capacity {
			back := bucket.order.Back()
			if back == nil {
				break
			}
			bucket.order.Remove(back)
			delete(bucket.entries, back.Value.(string))
		}
	}
	c.mu.Unlock()

	if c.backend != nil {
		return c.backend.Set(storage.CacheEntry{
			SessionID:    key.SessionID,
			CompositeKey: composite,
			Signature:    sig,
			Family:       key.ModelFamily,
			Timestamp:    now,
		})
	}
	return nil
}

// Restore looks up key, checking memory first, then the persistent backend
// on miss; a backend hit populates memory for subsequent lookups.
func (c *Cache) Restore(key CacheKey) (string, bool, error) {
	composite := key.composite()

	c.mu.Lock()
	if bucket, ok := c.sessions[key.SessionID]; ok {
		if entry, ok := bucket.entries[composite]; ok {
			if c.clock().Sub(entry.timestamp) <= c.ttl {
				bucket.order.MoveToFront(entry.elem)
				sig := entry.signature
				c.mu.Unlock()
				return sig, true, nil
			}
			// expired: drop at read time
			bucket.order.Remove(entry.elem)
			delete(bucket.entries, composite)
		}
	}
	c.mu.Unlock()

	if c.backend == nil {
		return "", false, nil
	}
	entry, ok, err := c.backend.Get(key.SessionID, composite)
	if err != nil || !ok {
		return "", ok, err
	}
	if c.clock().Sub(entry.Timestamp) > c.ttl {
		return "", false, nil
	}

	c.mu.Lock()
	bucket, ok := c.sessions[key.SessionID]
	if !ok {
		bucket = &sessionBucket{order: list.New(), entries: make(map[string]*cacheEntry)}
		c.sessions[key.SessionID] = bucket
	}
	elem := bucket.order.PushFront(composite)
	bucket.entries[composite] = &cacheEntry{
		signature: entry.Signature,
		family:    entry.Family,
		sessionID: key.SessionID,
		timestamp: entry.Timestamp,
		elem:      elem,
	}
	c.mu.Unlock()

	return entry.Signature, true, nil
}

// ClearSession drops every in-memory entry for sessionID and, if a backend
// is configured, its persisted entries too.
func (c *Cache) ClearSession(sessionID string) error {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	if c.backend != nil {
		return c.backend.ClearSession(sessionID)
	}
	return nil
}

// SessionEntryCount reports how many entries are currently cached in
// memory for sessionID.
func (c *Cache) SessionEntryCount(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.sessions[sessionID]
	if !ok {
		return 0
	}
	return bucket.order.Len()
}

// CleanupExpired drops every in-memory entry older than the configured
// TTL and returns the count removed; also sweeps the backend if present.
func (c *Cache) CleanupExpired() (int, error) {
	removed := 0
	now := c.clock()

	c.mu.Lock()
	for _, bucket := range c.sessions {
		var next *list.Element
		for elem := bucket.order.Back(); elem != nil; elem = next {
			next = elem.Prev()
			composite := elem.Value.(string)
			entry := bucket.entries[composite]
			if now.Sub(entry.timestamp) > c.ttl {
				bucket.order.Remove(elem)
				delete(bucket.entries, composite)
				removed++
			}
		}
	}
	c.mu.Unlock()

	if c.backend != nil {
		n, err := c.backend.CleanupExpired(c.ttl)
		return removed + n, err
	}
	return removed, nil
}
