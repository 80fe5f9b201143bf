package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetNextAvailable_NoStateReturnsZero(t *testing.T) {
	m := New()
	assert.Equal(t, 0, m.GetNextAvailable("openai", 3))
}

func TestGetNextAvailable_SkipsRateLimitedIndices(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockVal := now
	m := New(WithClock(func() time.Time { return clockVal }))

	m.MarkRateLimited("openai", 0, 10_000)
	assert.Equal(t, 1, m.GetNextAvailable("openai", 3))
}

func TestGetNextAvailable_AllRateLimitedReturnsEarliestExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockVal := now
	m := New(WithClock(func() time.Time { return clockVal }))

	m.MarkRateLimited("openai", 0, 10_000)
	m.MarkRateLimited("openai", 1, 3_000)
	m.MarkRateLimited("openai", 2, 20_000)

	assert.Equal(t, 1, m.GetNextAvailable("openai", 3))
}

func TestAreAllRateLimited(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockVal := now
	m := New(WithClock(func() time.Time { return clockVal }))

	assert.False(t, m.AreAllRateLimited("openai", 2), "no state recorded yet")

	m.MarkRateLimited("openai", 0, 5_000)
	assert.False(t, m.AreAllRateLimited("openai", 2))

	m.MarkRateLimited("openai", 1, 5_000)
	assert.True(t, m.AreAllRateLimited("openai", 2))

	clockVal = now.Add(10 * time.Second)
	assert.False(t, m.AreAllRateLimited("openai", 2), "expired after clock advance")
}

func TestGetMinWaitTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockVal := now
	m := New(WithClock(func() time.Time { return clockVal }))

	assert.Equal(t, int64(0), m.GetMinWaitTime("openai", 2))

	m.MarkRateLimited("openai", 0, 10_000)
	m.MarkRateLimited("openai", 1, 3_000)
	assert.Equal(t, int64(3_000), m.GetMinWaitTime("openai", 2))
}

func TestMarkRateLimited_IsolatedPerProvider(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New(WithClock(func() time.Time { return now }))

	m.MarkRateLimited("openai", 0, 10_000)
	assert.False(t, m.AreAllRateLimited("anthropic", 1))
	assert.Equal(t, 0, m.GetNextAvailable("anthropic", 1))
}
