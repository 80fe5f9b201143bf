// Package dialect defines the dialect-agnostic conversation tree that
// ThinkingRecoveryEngine, RequestTransform and StreamTransform all operate
// on. Inbound OpenAI/Anthropic/Gemini payloads are converted into this
// representation once, so strip/inject/turn-separate logic is written a
// single time regardless of which wire dialect a request arrived in.
package dialect

// Family is the coarse model classification used to gate signature policy.
type Family string

const (
	FamilyClaude Family = "claude"
	FamilyGemini Family = "gemini"
	FamilyOpenAI Family = "openai"
)

// Dialect identifies a request/response wire format.
type Dialect string

const (
	DialectOpenAI      Dialect = "openai"
	DialectAnthropic   Dialect = "anthropic"
	DialectGemini      Dialect = "gemini"
	DialectAntigravity Dialect = "antigravity"
	DialectOpenAIWeb   Dialect = "openai-web"
	DialectOpencodeZen Dialect = "opencode-zen"
)

// Role is a conversation message's speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant" // a.k.a. "model" in Gemini's dialect
	RoleSystem    Role = "system"
)

// PartKind tags the polymorphic variant a Part carries.
type PartKind string

const (
	PartText       PartKind = "text"
	PartThinking   PartKind = "thinking"
	PartToolUse    PartKind = "tool_use"
	PartToolResult PartKind = "tool_result"
	PartOther      PartKind = "other"
)

// Part is a single tagged content element within a Message. Only the
// fields relevant to Kind are populated; the zero value for the rest is
// meaningless and must not be round-tripped onto the wire.
type Part struct {
	Kind PartKind

	// Kind == PartText
	Text string

	// Kind == PartThinking
	ThinkingText string
	Signature    string // empty means "no signature yet"

	// Kind == PartToolUse
	ToolUseID string
	ToolName  string
	ToolArgs  map[string]interface{}

	// Kind == PartToolResult
	ToolResultID      string
	ToolResultContent string

	// Kind == PartOther preserves anything we don't understand so a
	// round-trip through the conversation tree never silently drops data.
	Raw map[string]interface{}
}

// HasSignature reports whether a thinking part carries a non-empty signature.
func (p Part) HasSignature() bool {
	return p.Kind == PartThinking && len(p.Signature) > 0
}

// Message is one conversation turn.
type Message struct {
	Role  Role
	Parts []Part
}

// HasToolUse reports whether the message contains at least one ToolUse part.
func (m Message) HasToolUse() bool {
	for _, p := range m.Parts {
		if p.Kind == PartToolUse {
			return true
		}
	}
	return false
}

// HasToolResult reports whether the message contains at least one ToolResult part.
func (m Message) HasToolResult() bool {
	for _, p := range m.Parts {
		if p.Kind == PartToolResult {
			return true
		}
	}
	return false
}

// HasThinking reports whether the message contains at least one Thinking part.
func (m Message) HasThinking() bool {
	for _, p := range m.Parts {
		if p.Kind == PartThinking {
			return true
		}
	}
	return false
}

// IsToolResultOnly reports whether every part in the message is a tool
// result (used to classify tool-loop messages for turn-separation).
func (m Message) IsToolResultOnly() bool {
	if len(m.Parts) == 0 {
		return false
	}
	for _, p := range m.Parts {
		if p.Kind != PartToolResult {
			return false
		}
	}
	return true
}

// ToolDecl is a dialect-neutral tool declaration. Each wire dialect names
// the schema field differently (parameters, input_schema,
// functionDeclarations); converters canonicalize into this shape so a tool
// declared in one dialect survives re-emission in another.
type ToolDecl struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// Conversation is the dialect-agnostic message sequence ThinkingRecoveryEngine
// and the signature admissibility walk operate on.
type Conversation struct {
	System   string
	Messages []Message
	Tools    []ToolDecl
}

// LastAssistantIndex returns the index of the last assistant message, or -1.
func (c *Conversation) LastAssistantIndex() int {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

// LastNonToolUserIndex returns the index of the last user message that is
// not purely a tool-result relay, or -1 if none exists. This anchors the
// start of the current turn.
func (c *Conversation) LastNonToolUserIndex() int {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		m := c.Messages[i]
		if m.Role == RoleUser && !m.IsToolResultOnly() {
			return i
		}
	}
	return -1
}

// InToolLoop reports whether the conversation's last message is a tool result.
func (c *Conversation) InToolLoop() bool {
	if len(c.Messages) == 0 {
		return false
	}
	return c.Messages[len(c.Messages)-1].IsToolResultOnly()
}

// TrailingToolResultCount counts the contiguous run of tool-result-only
// messages at the end of the conversation. This counts messages, not
// distinct tool-call ids.
func (c *Conversation) TrailingToolResultCount() int {
	n := 0
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if !c.Messages[i].IsToolResultOnly() {
			break
		}
		n++
	}
	return n
}

// TurnHasThinking reports whether any assistant message strictly after the
// last non-tool user message contains a thinking part.
func (c *Conversation) TurnHasThinking() bool {
	start := c.LastNonToolUserIndex()
	for i := start + 1; i < len(c.Messages); i++ {
		m := c.Messages[i]
		if m.Role == RoleAssistant && m.HasThinking() {
			return true
		}
	}
	return false
}
