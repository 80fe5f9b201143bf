// Package router resolves a requested model name into a concrete
// {provider, model} pair, walking a configured fallback chain while
// consulting the CooldownManager (and a per-key circuit breaker) for
// availability.
package router

import (
	"strings"
	"sync"
	"time"

	"github.com/soilSpoon/llmux/internal/domain/cooldown"
	"github.com/soilSpoon/llmux/internal/domain/modelmap"
)

// Target is a resolved {provider, model} pair.
type Target struct {
	Provider string
	Model    string
}

func (t Target) cooldownKey() string {
	return t.Provider + ":" + t.Model
}

// Mapping configures one model's primary target plus its fallback chain,
// the Router-facing counterpart of modelmap.Mapping's resolved form.
type Mapping struct {
	Primary   Target
	Fallbacks []Target
}

// Router resolves requested models against configured mappings and the
// shared CooldownManager.
type Router struct {
	cooldown *cooldown.Manager

	mu       sync.RWMutex
	mappings map[string]Mapping // keyed by lowercased requested model name
	breakers map[string]*circuitBreaker

	clock func() time.Time
}

// New constructs a Router bound to cm. mappings keys are matched
// case-insensitively against the requested model name.
func New(cm *cooldown.Manager, mappings map[string]Mapping) *Router {
	return &Router{
		cooldown: cm,
		mappings: mappings,
		breakers: make(map[string]*circuitBreaker),
		clock:    time.Now,
	}
}

// SetMappings swaps the configured mapping table, used by the config
// hot-reload watcher.
func (r *Router) SetMappings(mappings map[string]Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings = mappings
}

func (r *Router) breakerFor(key string) *circuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = newCircuitBreaker(5, 30*time.Second, r.clock)
		r.breakers[key] = b
	}
	return b
}

// available reports whether t can be attempted right now: its cooldown key
// must be available AND its circuit breaker must allow the call.
func (r *Router) available(t Target) bool {
	key := t.cooldownKey()
	if !r.cooldown.IsAvailable(key) {
		return false
	}
	return r.breakerFor(key).allow()
}

// ResolveModel resolves requestedModel into a Target, preferring the
// primary mapping, falling through its configured fallbacks in order, and
// finally falling back to the primary itself (letting the RetryDriver
// surface "all cooldown" once account exhaustion is also confirmed).
//
// If requestedModel has no configured mapping, a bare {provider,model} pair
// is derived by parsing an optional ":provider" suffix, else inferring the
// provider from the model name's prefix via modelmap.InferProvider.
func (r *Router) ResolveModel(requestedModel string) Target {
	r.mu.RLock()
	mapping, ok := r.mappings[strings.ToLower(strings.TrimSpace(requestedModel))]
	r.mu.RUnlock()

	if !ok {
		return r.inferTarget(requestedModel)
	}

	if r.available(mapping.Primary) {
		return mapping.Primary
	}
	for _, fb := range mapping.Fallbacks {
		if r.available(fb) {
			return fb
		}
	}
	return mapping.Primary
}

func (r *Router) inferTarget(requestedModel string) Target {
	if idx := strings.LastIndex(requestedModel, ":"); idx >= 0 {
		provider := requestedModel[idx+1:]
		if modelmap.ValidProviders[provider] {
			return Target{Provider: provider, Model: requestedModel[:idx]}
		}
	}
	return Target{Provider: modelmap.InferProvider(requestedModel), Model: requestedModel}
}

// HandleRateLimit records a rate-limit event against t's cooldown key.
func (r *Router) HandleRateLimit(t Target, retryAfterMs int64) time.Duration {
	return r.cooldown.MarkRateLimited(t.cooldownKey(), retryAfterMs)
}

// HandleSuccess clears t's cooldown state and records a breaker success.
func (r *Router) HandleSuccess(t Target) {
	r.cooldown.Reset(t.cooldownKey())
	r.breakerFor(t.cooldownKey()).recordSuccess()
}

// HandleFailure records a non-rate-limit failure against t's circuit
// breaker (5xx bursts that never 429).
func (r *Router) HandleFailure(t Target) {
	r.breakerFor(t.cooldownKey()).recordFailure()
}

// ProviderHealth is a read-only snapshot of one (provider,model) breaker,
// feeding /status and /providers.
type ProviderHealth struct {
	Provider     string
	Model        string
	CircuitState string
	Available    bool
}

// Health returns a snapshot of every tracked (provider,model) breaker.
func (r *Router) Health() []ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderHealth, 0, len(r.breakers))
	for key, b := range r.breakers {
		provider, model, _ := strings.Cut(key, ":")
		out = append(out, ProviderHealth{
			Provider:     provider,
			Model:        model,
			CircuitState: b.State(),
			Available:    r.cooldown.IsAvailable(key) && b.allow(),
		})
	}
	return out
}
