// Package modelmap resolves client-requested model names into a concrete
// {model, provider, thinking} triple via user-configured aliasing rules,
// with substring-based provider-family inference for unmapped names.
package modelmap

import "strings"

// ValidProviders is the set of provider names a "model:provider" suffix may
// name. Kept here (rather than importing a provider registry) to avoid a
// dependency cycle; the Router validates actual provider availability.
var ValidProviders = map[string]bool{
	"openai":       true,
	"anthropic":    true,
	"gemini":       true,
	"antigravity":  true,
	"openai-web":   true,
	"opencode-zen": true,
}

// Mapping is one configured `from -> to[...]` rule. To's first entry is the
// primary target; any remaining entries are fallback targets consumed by
// the Router.
type Mapping struct {
	From string
	To   []string
}

// Resolved is the result of applying a Mapping to a requested model name.
type Resolved struct {
	Model     string
	Provider  string // empty if not determined by the mapping itself
	Thinking  bool
	Fallbacks []ResolvedTarget
}

// ResolvedTarget is one fallback entry's {model, provider} pair.
type ResolvedTarget struct {
	Model    string
	Provider string
}

// Apply resolves original against mappings using longest/most-specific
// match: an exact (case-insensitive) match wins outright; otherwise the
// longest substring-matching `from` key wins. If no mapping matches,
// Resolved.Model is the original name unchanged and Provider is empty (the
// Router then infers a provider from the name).
func Apply(original string, mappings []Mapping) Resolved {
	norm := strings.ToLower(strings.TrimSpace(original))

	var best *Mapping
	bestLen := -1
	for i := range mappings {
		from := strings.ToLower(strings.TrimSpace(mappings[i].From))
		if from == norm {
			best = &mappings[i]
			bestLen = len(from) + 1_000_000 // exact match always wins
			continue
		}
		if strings.Contains(norm, from) && len(from) > bestLen {
			best = &mappings[i]
			bestLen = len(from)
		}
	}

	if best == nil || len(best.To) == 0 {
		return Resolved{Model: original}
	}

	primary := parseTarget(best.To[0])
	res := Resolved{
		Model:    primary.Model,
		Provider: primary.Provider,
		Thinking: primary.Thinking,
	}
	for _, raw := range best.To[1:] {
		t := parseTarget(raw)
		res.Fallbacks = append(res.Fallbacks, ResolvedTarget{Model: t.Model, Provider: t.Provider})
	}
	return res
}

type parsedTarget struct {
	Model    string
	Provider string
	Thinking bool
}

// parseTarget splits a `to` entry of the form `["thinking:"]model[":provider"]`.
func parseTarget(raw string) parsedTarget {
	s := raw
	var t parsedTarget

	if rest, ok := strings.CutPrefix(s, "thinking:"); ok {
		t.Thinking = true
		s = rest
	}

	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		provider := s[idx+1:]
		if ValidProviders[provider] {
			t.Provider = provider
			s = s[:idx]
		}
	}

	t.Model = s
	return t
}

// InferFamily classifies modelID into the coarse family the thinking
// lifecycle gates on.
func InferFamily(modelID string) string {
	lower := strings.ToLower(modelID)
	switch {
	case containsAny(lower, "claude", "anthropic"):
		return "claude"
	case containsAny(lower, "gemini", "google"):
		return "gemini"
	case containsAny(lower, "gpt", "openai", "o1", "o3", "o4"):
		return "openai"
	default:
		return "openai"
	}
}

// InferProvider derives a provider from a bare model name prefix when no
// mapping or explicit suffix determined one.
func InferProvider(modelID string) string {
	lower := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(lower, "gpt-") || strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3"):
		return "openai"
	case strings.HasPrefix(lower, "claude-"):
		return "anthropic"
	case strings.HasPrefix(lower, "gemini-"):
		return "gemini"
	case strings.HasPrefix(lower, "glm-") || strings.HasPrefix(lower, "kimi-"):
		return "opencode-zen"
	default:
		return "openai"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
