package signature

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longSig(tag string) string {
	return strings.Repeat("x", MinSignatureLength) + tag
}

func TestCache_StoreIgnoresShortSignatures(t *testing.T) {
	c := NewCache()
	key := CacheKey{SessionID: "s1", ModelFamily: "claude", TextHash: "hash"}
	require.NoError(t, c.Store(key, "too-short"))

	_, ok, err := c.Restore(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_StoreAndRestoreRoundTrip(t *testing.T) {
	c := NewCache()
	key := CacheKey{SessionID: "s1", ModelFamily: "claude", TextHash: "hash"}
	sig := longSig("a")
	require.NoError(t, c.Store(key, sig))

	got, ok, err := c.Restore(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sig, got)
}

func TestCache_RestoreExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockVal := now
	c := NewCache(WithTTL(time.Minute), WithClock(func() time.Time { return clockVal }))

	key := CacheKey{SessionID: "s1", ModelFamily: "claude", TextHash: "hash"}
	require.NoError(t, c.Store(key, longSig("a")))

	clockVal = now.Add(2 * time.Minute)
	_, ok, err := c.Restore(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsedPerSessionCapacity(t *testing.T) {
	c := NewCache(WithCapacity(2))

	c.Store(CacheKey{SessionID: "s1", ModelFamily: "claude", TextHash: "h1"}, longSig("1"))
	c.Store(CacheKey{SessionID: "s1", ModelFamily: "claude", TextHash: "h2"}, longSig("2"))
	c.Store(CacheKey{SessionID: "s1", ModelFamily: "claude", TextHash: "h3"}, longSig("3"))

	_, ok, _ := c.Restore(CacheKey{SessionID: "s1", ModelFamily: "claude", TextHash: "h1"})
	assert.False(t, ok, "h1 should have been evicted as least recently used")

	_, ok, _ = c.Restore(CacheKey{SessionID: "s1", ModelFamily: "claude", TextHash: "h3"})
	assert.True(t, ok)
}

func TestCache_ClearSessionRemovesAllEntries(t *testing.T) {
	c := NewCache()
	key := CacheKey{SessionID: "s1", ModelFamily: "claude", TextHash: "hash"}
	require.NoError(t, c.Store(key, longSig("a")))
	require.NoError(t, c.ClearSession("s1"))

	_, ok, err := c.Restore(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTextHash_StableAndContentAddressed(t *testing.T) {
	assert.Equal(t, TextHash("hello"), TextHash("hello"))
	assert.NotEqual(t, TextHash("hello"), TextHash("world"))
}
