// Package credentials provides the minimal CredentialProvider the dispatch
// engine needs. Credential storage and OAuth token refresh are an explicit
// external collaborator this gateway treats as opaque; this package is the
// simplest real implementation of that boundary (one API key per provider
// read from the environment), not a stand-in for the full credential store.
package credentials

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// EnvProvider resolves per-provider auth headers from
// "<PROVIDER>_API_KEY"-shaped environment variables and a configured base
// URL per provider.
type EnvProvider struct {
	BaseURLs map[string]string
}

// NewEnvProvider builds an EnvProvider with the given default base URLs.
func NewEnvProvider(baseURLs map[string]string) *EnvProvider {
	return &EnvProvider{BaseURLs: baseURLs}
}

func envKey(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
}

// Headers builds the provider's auth header from its API key env var.
// accountIndex selects the variable for multi-account rotation: index 0
// uses the bare "<KEY>", index i > 0 uses "<KEY>_<i+1>" ("<KEY>_2",
// "<KEY>_3", ...).
func (p *EnvProvider) Headers(ctx context.Context, provider string, accountIndex int) (http.Header, error) {
	key := envKey(provider)
	if accountIndex > 0 {
		key = fmt.Sprintf("%s_%d", key, accountIndex+1)
	}
	apiKey := os.Getenv(key)
	if apiKey == "" {
		return nil, fmt.Errorf("credentials: %s is not set", key)
	}

	h := http.Header{}
	switch provider {
	case "anthropic", "antigravity":
		h.Set("x-api-key", apiKey)
		h.Set("anthropic-version", "2023-06-01")
	case "gemini":
		h.Set("x-goog-api-key", apiKey)
	default:
		h.Set("Authorization", "Bearer "+apiKey)
	}
	h.Set("Content-Type", "application/json")
	return h, nil
}

// AccountCount reports how many rotation slots provider has configured,
// by counting the bare "<KEY>" variable plus consecutive "<KEY>_2",
// "<KEY>_3", ... variables, stopping at the first gap. AccountRotationManager
// (C2) uses this as its per-provider account count instead of an assumed
// constant, so credentials actually present in the environment are what
// determines rotation fairness.
func (p *EnvProvider) AccountCount(provider string) int {
	key := envKey(provider)
	if os.Getenv(key) == "" {
		return 0
	}
	count := 1
	for {
		if os.Getenv(fmt.Sprintf("%s_%d", key, count+1)) == "" {
			break
		}
		count++
	}
	return count
}

// BaseURL returns the configured base URL for provider, or its built-in
// default if unconfigured.
func (p *EnvProvider) BaseURL(provider string) string {
	if url, ok := p.BaseURLs[provider]; ok {
		return url
	}
	return defaultBaseURLs[provider]
}

var defaultBaseURLs = map[string]string{
	"openai":       "https://api.openai.com/v1/chat/completions",
	"anthropic":    "https://api.anthropic.com/v1/messages",
	"gemini":       "https://generativelanguage.googleapis.com/v1beta/models",
	"antigravity":  "https://api.antigravity.dev/v1/messages",
	"openai-web":   "https://chatgpt.com/backend-api/codex/responses",
	"opencode-zen": "https://opencode.ai",
}

// AntigravityFallbackURLs returns the fixed, ordered list of antigravity
// base URLs rotateAntigravityEndpoint walks through on repeated network
// errors. Overridable via ANTIGRAVITY_FALLBACK_URLS
// (comma-separated) for deployments behind a different set of edges.
func (p *EnvProvider) AntigravityFallbackURLs() []string {
	raw := os.Getenv("ANTIGRAVITY_FALLBACK_URLS")
	if raw == "" {
		return defaultAntigravityFallbackURLs
	}
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return defaultAntigravityFallbackURLs
	}
	return urls
}

var defaultAntigravityFallbackURLs = []string{
	"https://api.antigravity.dev",
	"https://api2.antigravity.dev",
	"https://api3.antigravity.dev",
}
