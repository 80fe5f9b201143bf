// Package thinking implements the ThinkingRecoveryEngine (C7): the
// strip/inject/turn-separate logic that reconciles "thinking" blocks
// against each downstream provider's validation rules (Claude requires
// thinking before tool_use, Gemini rejects corrupted signatures, OpenAI
// errors on unknown fields).
package thinking

import (
	"strings"
	"sync"
	"time"

	"github.com/soilSpoon/llmux/internal/domain/dialect"
	"github.com/soilSpoon/llmux/internal/domain/signature"
)

// signedThinking is one entry in the engine's own session-scoped "last
// signed thinking" map (Layer 1 of the injection fallback chain).
type signedThinking struct {
	text      string
	signature string
	family    string
	at        time.Time
}

// Engine runs the strip/inject/turn-separate algorithm. It owns the
// session-scoped Layer 1 map; Layer 2 (GlobalSlot) and Layer 3 (persistent
// Cache) are injected dependencies shared across the process.
type Engine struct {
	mu         sync.Mutex
	lastSigned map[string]signedThinking // sessionKey -> last signed thinking

	global *signature.GlobalSlot
	cache  *signature.Cache
}

// New constructs an Engine sharing global and cache with the rest of the
// signature lifecycle.
func New(global *signature.GlobalSlot, cache *signature.Cache) *Engine {
	return &Engine{
		lastSigned: make(map[string]signedThinking),
		global:     global,
		cache:      cache,
	}
}

// IsManagedThinkingModel reports whether model is a managed "thinking"
// variant, the only kind of native Gemini model whose signatures are
// cached and re-injected.
func IsManagedThinkingModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "thinking")
}

// ShouldCacheSignatures is the gate: true iff modelFamily != "openai", and
// for native Gemini models only when isManagedThinkingModel holds. All
// Process logic is skipped for models that fail this gate.
func ShouldCacheSignatures(family string, isManagedThinkingModel bool) bool {
	if family == "openai" {
		return false
	}
	if family == "gemini" {
		return isManagedThinkingModel
	}
	return true
}

// CacheSignatureFromChunk accumulates thinking text for a streaming
// candidate index and, once a signature of sufficient length arrives,
// records it into the session map, the global slot, and the persistent
// cache keyed by the full text's hash. textBuffer is mutated in place.
func (e *Engine) CacheSignatureFromChunk(sessionKey, family string, textBuffer map[int]string, idx int, textDelta, sig string) {
	textBuffer[idx] += textDelta
	if len(sig) < signature.MinSignatureLength {
		return
	}

	fullText := textBuffer[idx]

	e.mu.Lock()
	e.lastSigned[sessionKey] = signedThinking{text: fullText, signature: sig, family: family, at: time.Now()}
	e.mu.Unlock()

	e.global.Set(fullText, sig, family)

	_ = e.cache.Store(signature.CacheKey{
		SessionID:   sessionKey,
		ModelFamily: family,
		TextHash:    signature.TextHash(fullText),
	}, sig)
}

// Strip removes every thinking part from every message (Step 1).
func Strip(conv dialect.Conversation) dialect.Conversation {
	out := dialect.Conversation{System: conv.System, Tools: conv.Tools, Messages: make([]dialect.Message, len(conv.Messages))}
	for i, msg := range conv.Messages {
		parts := make([]dialect.Part, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			if p.Kind == dialect.PartThinking {
				continue
			}
			parts = append(parts, p)
		}
		out.Messages[i] = dialect.Message{Role: msg.Role, Parts: parts}
	}
	return out
}

// recoveryAssistantText returns the text of the synthetic assistant
// turn-separation message appended when Layer 4 triggers, chosen per the
// trailing tool-result count.
func recoveryAssistantText(trailingToolResults int) string {
	switch {
	case trailingToolResults == 0:
		return "[Processing previous context.]"
	case trailingToolResults == 1:
		return "[Tool execution completed.]"
	default:
		return "[N tool executions completed.]"
	}
}

// Process runs Step 2 (inject) and Step 3/Layer 4 (turn-separation
// recovery) against a conversation whose thinking parts have already been
// stripped by Strip. sessionKey, family and stripped are carried from the
// caller; preStripText supplies, per message index, the thinking text that
// existed before stripping (for Layer 3's text-hash restore), or "" if the
// message had none.
func (e *Engine) Process(stripped dialect.Conversation, sessionKey, family string, preStripText map[int]string) dialect.Conversation {
	out := dialect.Conversation{System: stripped.System, Tools: stripped.Tools, Messages: append([]dialect.Message(nil), stripped.Messages...)}

	lastAssistant := out.LastAssistantIndex()
	injectedInTrailingSegment := false
	lastNonToolUser := out.LastNonToolUserIndex()

	for i, msg := range out.Messages {
		if msg.Role != dialect.RoleAssistant {
			continue
		}
		isLast := i == lastAssistant
		if !msg.HasToolUse() && !isLast {
			continue
		}

		part, ok := e.resolveThinking(sessionKey, family, preStripText[i])
		if !ok {
			continue
		}
		newParts := append([]dialect.Part{part}, msg.Parts...)
		out.Messages[i] = dialect.Message{Role: msg.Role, Parts: newParts}
		if i > lastNonToolUser {
			injectedInTrailingSegment = true
		}
	}

	if e.needsThinkingRecovery(&out) && !injectedInTrailingSegment {
		trailing := out.TrailingToolResultCount()
		out.Messages = append(out.Messages,
			dialect.Message{Role: dialect.RoleAssistant, Parts: []dialect.Part{{Kind: dialect.PartText, Text: recoveryAssistantText(trailing)}}},
			dialect.Message{Role: dialect.RoleUser, Parts: []dialect.Part{{Kind: dialect.PartText, Text: "[Continue]"}}},
		)
	}

	return out
}

// needsThinkingRecovery implements the Layer 4 trigger condition:
// inToolLoop && !turnHasThinking.
func (e *Engine) needsThinkingRecovery(conv *dialect.Conversation) bool {
	return conv.InToolLoop() && !conv.TurnHasThinking()
}

// resolveThinking tries Layer 1 (session map), Layer 2 (global slot), then
// Layer 3 (persistent cache restore by text hash), in order.
func (e *Engine) resolveThinking(sessionKey, family, preStripText string) (dialect.Part, bool) {
	e.mu.Lock()
	last, ok := e.lastSigned[sessionKey]
	e.mu.Unlock()
	if ok && last.family == family {
		return dialect.Part{Kind: dialect.PartThinking, ThinkingText: last.text, Signature: last.signature}, true
	}

	if text, sig, ok := e.global.Get(family); ok {
		return dialect.Part{Kind: dialect.PartThinking, ThinkingText: text, Signature: sig}, true
	}

	if preStripText != "" {
		sig, ok, err := e.cache.Restore(signature.CacheKey{
			SessionID:   sessionKey,
			ModelFamily: family,
			TextHash:    signature.TextHash(preStripText),
		})
		if err == nil && ok {
			return dialect.Part{Kind: dialect.PartThinking, ThinkingText: preStripText, Signature: sig}, true
		}
	}

	return dialect.Part{}, false
}

// PreStripThinkingText captures, per message index, the text of the first
// thinking part in that message before Strip removes it. Callers run this
// immediately before Strip and pass the result into Process.
func PreStripThinkingText(conv dialect.Conversation) map[int]string {
	out := make(map[int]string)
	for i, msg := range conv.Messages {
		for _, p := range msg.Parts {
			if p.Kind == dialect.PartThinking {
				out[i] = p.ThinkingText
				break
			}
		}
	}
	return out
}
