package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soilSpoon/llmux/internal/domain/cooldown"
)

func newTestCooldown(now time.Time) *cooldown.Manager {
	return cooldown.New(cooldown.WithClock(func() time.Time { return now }), cooldown.WithRand(func() float64 { return 0 }))
}

func TestResolveModel_NoMappingInfersFromSuffix(t *testing.T) {
	r := New(newTestCooldown(time.Now()), nil)
	target := r.ResolveModel("my-model:anthropic")
	assert.Equal(t, Target{Provider: "anthropic", Model: "my-model"}, target)
}

func TestResolveModel_NoMappingInfersFromPrefix(t *testing.T) {
	r := New(newTestCooldown(time.Now()), nil)
	target := r.ResolveModel("gpt-4o")
	assert.Equal(t, Target{Provider: "openai", Model: "gpt-4o"}, target)
}

func TestResolveModel_UsesPrimaryWhenAvailable(t *testing.T) {
	mappings := map[string]Mapping{
		"smart": {Primary: Target{Provider: "anthropic", Model: "claude-opus-4"}},
	}
	r := New(newTestCooldown(time.Now()), mappings)
	assert.Equal(t, Target{Provider: "anthropic", Model: "claude-opus-4"}, r.ResolveModel("smart"))
	assert.Equal(t, Target{Provider: "anthropic", Model: "claude-opus-4"}, r.ResolveModel("SMART"), "matching is case-insensitive")
}

func TestResolveModel_FallsThroughCooldownPrimary(t *testing.T) {
	now := time.Now()
	cm := newTestCooldown(now)
	mappings := map[string]Mapping{
		"smart": {
			Primary:   Target{Provider: "anthropic", Model: "claude-opus-4"},
			Fallbacks: []Target{{Provider: "openai", Model: "gpt-4o"}},
		},
	}
	r := New(cm, mappings)

	r.HandleRateLimit(Target{Provider: "anthropic", Model: "claude-opus-4"}, 60_000)

	assert.Equal(t, Target{Provider: "openai", Model: "gpt-4o"}, r.ResolveModel("smart"))
}

func TestResolveModel_AllExhaustedReturnsPrimary(t *testing.T) {
	now := time.Now()
	cm := newTestCooldown(now)
	primary := Target{Provider: "anthropic", Model: "claude-opus-4"}
	fallback := Target{Provider: "openai", Model: "gpt-4o"}
	mappings := map[string]Mapping{
		"smart": {Primary: primary, Fallbacks: []Target{fallback}},
	}
	r := New(cm, mappings)

	r.HandleRateLimit(primary, 60_000)
	r.HandleRateLimit(fallback, 60_000)

	assert.Equal(t, primary, r.ResolveModel("smart"))
}

func TestHandleSuccess_ClearsCooldownAndBreaker(t *testing.T) {
	now := time.Now()
	cm := newTestCooldown(now)
	target := Target{Provider: "anthropic", Model: "claude-opus-4"}
	r := New(cm, nil)

	r.HandleRateLimit(target, 60_000)
	require.False(t, cm.IsAvailable(target.cooldownKey()))

	r.HandleSuccess(target)
	assert.True(t, cm.IsAvailable(target.cooldownKey()))
}

func TestHandleFailure_EventuallyTripsBreaker(t *testing.T) {
	cm := newTestCooldown(time.Now())
	target := Target{Provider: "anthropic", Model: "claude-opus-4"}
	r := New(cm, nil)

	for i := 0; i < 5; i++ {
		r.HandleFailure(target)
	}

	assert.False(t, r.available(target))
}

func TestHealth_ReportsEveryTrackedTarget(t *testing.T) {
	cm := newTestCooldown(time.Now())
	r := New(cm, nil)

	r.HandleFailure(Target{Provider: "openai", Model: "gpt-4o"})
	r.HandleSuccess(Target{Provider: "anthropic", Model: "claude-opus-4"})

	health := r.Health()
	assert.Len(t, health, 2)
}

func TestSetMappings_ReplacesTable(t *testing.T) {
	r := New(newTestCooldown(time.Now()), map[string]Mapping{
		"old": {Primary: Target{Provider: "openai", Model: "gpt-4o"}},
	})
	r.SetMappings(map[string]Mapping{
		"new": {Primary: Target{Provider: "anthropic", Model: "claude-opus-4"}},
	})

	assert.Equal(t, Target{Provider: "anthropic", Model: "claude-opus-4"}, r.ResolveModel("new"))
	// "old" no longer mapped, falls through to prefix inference.
	assert.Equal(t, Target{Provider: "openai", Model: "old"}, r.ResolveModel("old"))
}
