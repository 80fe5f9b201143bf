package antigravity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/soilSpoon/llmux/internal/dialect/gemini"
	"github.com/soilSpoon/llmux/internal/domain/dialect"
)

// ToConversation unwraps env.Request via the Gemini conversion.
func ToConversation(env Envelope) dialect.Conversation {
	return gemini.ToConversation(env.Request)
}

// BuildEnvelope wraps conv (re-emitted as a Gemini request from base) in
// the Antigravity outer envelope.
func BuildEnvelope(base gemini.Request, conv dialect.Conversation, projectID, model, sessionID string) Envelope {
	return Envelope{
		Project:     projectID,
		Model:       model,
		Request:     gemini.FromConversation(base, conv),
		RequestID:   fmt.Sprintf("agent-%s", uuid.NewString()),
		SessionID:   sessionID,
		UserAgent:   "antigravity",
		RequestType: "agent",
	}
}
