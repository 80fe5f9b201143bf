package request

import "strings"

// EndpointContext carries what ResolveStreamEndpoint needs to pick a
// concrete upstream URL for one attempt.
type EndpointContext struct {
	Provider string
	Model    string

	// OpenAIWebEndpoint is the openai-web base URL the dispatcher resolved
	// for this attempt (openai-web only).
	OpenAIWebEndpoint string

	// AntigravityFallbacks is the fixed list of base URLs antigravity
	// rotates through, and Index the current position within it.
	AntigravityFallbacks  []string
	AntigravityIndex      int
	AntigravityStreamPath string

	// DefaultEndpoint is the provider's normal non-special-cased endpoint.
	DefaultEndpoint string
}

// opencodeZenRoutes maps a model-family protocol to its fixed opencode-zen
// path.
var opencodeZenRoutes = map[string]string{
	"openai":    "/zen/v1/chat/completions",
	"anthropic": "/zen/v1/messages",
	"gemini":    "/zen/v1/generateContent",
}

// ResolveStreamEndpoint picks the concrete URL to stream from for this
// attempt.
func ResolveStreamEndpoint(ctx EndpointContext) string {
	switch ctx.Provider {
	case "openai-web":
		return ctx.OpenAIWebEndpoint
	case "opencode-zen":
		proto := opencodeZenModelProtocol(ctx.Model)
		if route, ok := opencodeZenRoutes[proto]; ok {
			return route
		}
		return ctx.DefaultEndpoint
	case "antigravity":
		if ctx.AntigravityIndex >= 0 && ctx.AntigravityIndex < len(ctx.AntigravityFallbacks) {
			return ctx.AntigravityFallbacks[ctx.AntigravityIndex] + ctx.AntigravityStreamPath
		}
		return ctx.DefaultEndpoint
	default:
		return ctx.DefaultEndpoint
	}
}

func opencodeZenModelProtocol(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude"):
		return "anthropic"
	case strings.HasPrefix(lower, "gemini"):
		return "gemini"
	default:
		return "openai"
	}
}
