// Package antigravity defines the outer wrapper the Antigravity upstream
// expects: a Gemini-shaped inner request enclosed in a
// {project, model, request, requestId} envelope.
package antigravity

import "github.com/soilSpoon/llmux/internal/dialect/gemini"

// Envelope is the outer request body Antigravity's v1internal endpoint
// expects.
type Envelope struct {
	Project     string         `json:"project"`
	Model       string         `json:"model"`
	Request     gemini.Request `json:"request"`
	RequestID   string         `json:"requestId"`
	SessionID   string         `json:"sessionId,omitempty"`
	UserAgent   string         `json:"userAgent,omitempty"`
	RequestType string         `json:"requestType,omitempty"`
}

// StreamEvent reuses the Gemini candidate shape: Antigravity's streaming
// responses are Gemini-shaped generateContent chunks.
type StreamEvent = gemini.Response
