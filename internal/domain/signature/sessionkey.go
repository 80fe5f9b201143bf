package signature

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// NewServerSessionID generates the random 128-bit value used once per
// process start as SERVER_SESSION_ID.
func NewServerSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is catastrophic; a zeroed ID at worst
		// degrades signature-cache scoping for this process lifetime.
		return hex.EncodeToString(b[:])
	}
	return hex.EncodeToString(b[:])
}

// BuildSignatureSessionKey builds the session key format
// "<SERVER_SESSION_ID>:<lowercase-model>:<projectKey|default>:<convKey|default>".
func BuildSignatureSessionKey(serverSessionID, model, convKey, projectKey string) string {
	if convKey == "" {
		convKey = "default"
	}
	if projectKey == "" {
		projectKey = "default"
	}
	return fmt.Sprintf("%s:%s:%s:%s", serverSessionID, strings.ToLower(model), projectKey, convKey)
}

// ExtractConversationKey tries, in order, a set of well-known payload
// fields to derive a conversation identity; absent all of them it falls
// back to a stable seed derived from the system + first user text. The
// second return value is false only when neither an explicit key nor any
// seed text is present.
func ExtractConversationKey(payload map[string]interface{}, systemText, firstUserText string) (string, bool) {
	candidates := []string{
		"conversationId", "conversation_id",
		"thread_id", "threadId",
		"chat_id", "chatId",
		"sessionId", "session_id",
	}
	for _, field := range candidates {
		if v, ok := payload[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	if meta, ok := payload["metadata"].(map[string]interface{}); ok {
		for _, field := range []string{"conversation_id", "conversationId"} {
			if v, ok := meta[field]; ok {
				if s, ok := v.(string); ok && s != "" {
					return s, true
				}
			}
		}
	}

	if systemText == "" && firstUserText == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(systemText + "|" + firstUserText))
	return "seed-" + hex.EncodeToString(sum[:])[:16], true
}
