// Package openaiweb defines the OpenAI-Web/Codex wire dialect: a
// Responses-style body with model, input items, tools and a reasoning
// config.
package openaiweb

// Body is the Codex-style request body.
type Body struct {
	Model     string           `json:"model"`
	Input     []InputItem      `json:"input"`
	Tools     []Tool           `json:"tools,omitempty"`
	Reasoning *ReasoningConfig `json:"reasoning,omitempty"`
	Stream    bool             `json:"stream,omitempty"`
}

// InputItem is one conversation turn in the Responses-style input array.
type InputItem struct {
	Type    string         `json:"type"` // "message" | "function_call" | "function_call_output"
	Role    string         `json:"role,omitempty"`
	Content []InputContent `json:"content,omitempty"`

	// For type "function_call"
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// For type "function_call_output"
	Output string `json:"output,omitempty"`
}

// InputContent is a polymorphic content part within an InputItem.
type InputContent struct {
	Type string `json:"type"` // "input_text" | "output_text"
	Text string `json:"text,omitempty"`
}

// Tool is a Codex tool declaration.
type Tool struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ReasoningConfig controls Codex's reasoning effort; thinking is never
// round-tripped on this dialect, matching OpenAI's family gate.
type ReasoningConfig struct {
	Effort string `json:"effort,omitempty"` // "low" | "medium" | "high"
}

// Event is one Codex SSE event; Codex re-uses OpenAI's
// response.output_text.delta / response.completed event names.
type Event struct {
	Type     string `json:"type"`
	Delta    string `json:"delta,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
	Response *Body  `json:"response,omitempty"`
}
