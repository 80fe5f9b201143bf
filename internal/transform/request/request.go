// Package request implements the pure dialect-to-dialect request rewriter
// plus the provider-specific body fixups opencode-zen, antigravity and
// openai-web/Codex require.
package request

import (
	"strings"

	"github.com/soilSpoon/llmux/internal/dialect/anthropic"
	"github.com/soilSpoon/llmux/internal/dialect/gemini"
	"github.com/soilSpoon/llmux/internal/dialect/openai"
	"github.com/soilSpoon/llmux/internal/domain/dialect"
)

// Params groups the options of one dialect-to-dialect request rewrite. No
// function in this repository takes it as an argument.
type Params struct {
	From             dialect.Dialect
	To               dialect.Dialect
	Model            string
	ThinkingOverride *bool
	Metadata         map[string]interface{}
}

// ToConversation decodes a raw client body (already unmarshaled into one
// of the three typed request structs) in its source dialect into the
// conversation tree.
func ToConversation(from dialect.Dialect, oaiReq *openai.Request, anthReq *anthropic.Request, gemReq *gemini.Request) dialect.Conversation {
	switch from {
	case dialect.DialectAnthropic:
		return anthropic.ToConversation(*anthReq)
	case dialect.DialectGemini:
		return gemini.ToConversation(*gemReq)
	default:
		return openai.ToConversation(*oaiReq)
	}
}

// StripCacheControl recursively removes any "cache_control" key from a
// raw decoded JSON body, as opencode-zen's fixup requires.
func StripCacheControl(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if k == "cache_control" {
				continue
			}
			out[k] = StripCacheControl(val)
		}
		delete(out, "reasoning_effort")
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = StripCacheControl(val)
		}
		return out
	default:
		return v
	}
}

// OpencodeZenFixup applies opencode-zen's provider-specific adjustments to
// a raw decoded OpenAI-shaped body: strips cache_control/reasoning_effort,
// disables thinking for glm-*/kimi-* models when thinkingEnabled is false,
// and rewrites Anthropic-shaped tool declarations (input_schema) into
// OpenAI function-tool shape.
func OpencodeZenFixup(body map[string]interface{}, model string, thinkingEnabled bool) map[string]interface{} {
	cleaned, _ := StripCacheControl(body).(map[string]interface{})
	if cleaned == nil {
		cleaned = body
	}

	lower := strings.ToLower(model)
	if !thinkingEnabled && (strings.HasPrefix(lower, "glm-") || strings.HasPrefix(lower, "kimi-")) {
		cleaned["thinking"] = map[string]interface{}{"type": "disabled"}
	}

	if tools, ok := cleaned["tools"].([]interface{}); ok && len(tools) > 0 {
		if first, ok := tools[0].(map[string]interface{}); ok {
			if _, hasInputSchema := first["input_schema"]; hasInputSchema {
				rewritten := make([]interface{}, len(tools))
				for i, raw := range tools {
					t, ok := raw.(map[string]interface{})
					if !ok {
						rewritten[i] = raw
						continue
					}
					rewritten[i] = map[string]interface{}{
						"type": "function",
						"function": map[string]interface{}{
							"name":        t["name"],
							"description": t["description"],
							"parameters":  t["input_schema"],
						},
					}
				}
				cleaned["tools"] = rewritten
			}
		}
	}

	return cleaned
}

// StripSignaturesIfChanged strips every thinking part's signature from
// conv when the effective provider or model changed since the previous
// retry attempt, per RetryDriver step 6.
func StripSignaturesIfChanged(conv dialect.Conversation, changed bool, strip func(dialect.Conversation) dialect.Conversation) dialect.Conversation {
	if !changed {
		return conv
	}
	return strip(conv)
}
