package thinking

import (
	"regexp"
	"strings"

	"github.com/soilSpoon/llmux/internal/domain/dialect"
)

// Opencode-zen's glm/kimi models emit reasoning as inline tagged text
// (<think>...</think>) rather than a structured thinking part. This
// pre-pass normalizes that into a dialect.PartThinking before the
// dialect-agnostic strip/inject/turn-separate logic runs, extracting the
// tagged span rather than discarding it.
var reasoningTagRe = regexp.MustCompile(`(?is)<\s*(?:think(?:ing)?|thought|antthinking)\b[^<>]*>(.*?)<\s*/\s*(?:think(?:ing)?|thought|antthinking)\b[^<>]*>`)

// ExtractInlineReasoningTag finds the first well-formed <think>...</think>
// (or thinking/thought/antthinking) span in text and returns the inner
// text plus the surrounding text with that span removed. ok is false if no
// tag is present, in which case text is returned unchanged.
func ExtractInlineReasoningTag(text string) (thinkingText, remainder string, ok bool) {
	loc := reasoningTagRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", text, false
	}
	inner := text[loc[2]:loc[3]]
	remainder = text[:loc[0]] + text[loc[1]:]
	return strings.TrimSpace(inner), remainder, true
}

// NormalizeInlineReasoning rewrites every assistant text part in conv that
// carries an inline reasoning tag into a separate leading PartThinking plus
// the detagged text, so the rest of the strip/inject pipeline never has to
// special-case opencode-zen's glm/kimi models. Messages with no tagged text
// pass through unchanged.
func NormalizeInlineReasoning(conv dialect.Conversation) dialect.Conversation {
	out := conv
	out.Messages = make([]dialect.Message, len(conv.Messages))
	for i, msg := range conv.Messages {
		if msg.Role != dialect.RoleAssistant {
			out.Messages[i] = msg
			continue
		}
		out.Messages[i] = normalizeMessage(msg)
	}
	return out
}

func normalizeMessage(msg dialect.Message) dialect.Message {
	parts := make([]dialect.Part, 0, len(msg.Parts)+1)
	for _, p := range msg.Parts {
		if p.Kind != dialect.PartText {
			parts = append(parts, p)
			continue
		}
		thinkingText, remainder, ok := ExtractInlineReasoningTag(p.Text)
		if !ok {
			parts = append(parts, p)
			continue
		}
		parts = append(parts, dialect.Part{Kind: dialect.PartThinking, ThinkingText: thinkingText})
		if remainder = strings.TrimSpace(remainder); remainder != "" {
			parts = append(parts, dialect.Part{Kind: dialect.PartText, Text: remainder})
		}
	}
	return dialect.Message{Role: msg.Role, Parts: parts}
}
