package dispatch

import (
	"strings"

	"github.com/soilSpoon/llmux/internal/domain/dialect"
)

// DetectSourceDialect resolves the client's wire dialect: path-based detection
// first, falling back to body-shape inspection for routes that don't name
// their dialect (provider-scoped passthrough routes).
func DetectSourceDialect(path string, body map[string]interface{}) dialect.Dialect {
	switch {
	case strings.Contains(path, "/v1/messages"):
		return dialect.DialectAnthropic
	case strings.Contains(path, "/v1/chat/completions"):
		return dialect.DialectOpenAI
	case strings.Contains(path, "/v1/responses"):
		return dialect.DialectOpenAIWeb
	case strings.Contains(path, "generateContent") || strings.Contains(path, "streamGenerateContent"):
		return dialect.DialectGemini
	default:
		return detectByBodyShape(body)
	}
}

// detectByBodyShape inspects the decoded JSON body for dialect-distinguishing
// top-level keys when the route itself is dialect-agnostic.
func detectByBodyShape(body map[string]interface{}) dialect.Dialect {
	if _, ok := body["contents"]; ok {
		return dialect.DialectGemini
	}
	if _, ok := body["messages"]; ok {
		if _, hasSystem := body["system"]; hasSystem {
			return dialect.DialectAnthropic
		}
		return dialect.DialectOpenAI
	}
	return dialect.DialectOpenAI
}
