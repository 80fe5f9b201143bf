package stream

// EventKind classifies one parsed streaming delta.
type EventKind string

const (
	EventTextDelta     EventKind = "text_delta"
	EventThinkingDelta EventKind = "thinking_delta"
	EventToolUseStart  EventKind = "tool_use_start"
	EventToolUseDelta  EventKind = "tool_use_delta"
	EventToolUseStop   EventKind = "tool_use_stop"
	EventStopReason    EventKind = "stop_reason"
	EventUsage         EventKind = "usage"
	EventOther         EventKind = "other"
)

// UnifiedEvent is the dialect-agnostic shape sourceProvider.parseStreamChunk
// produces and targetProvider.transformStreamChunk consumes.
type UnifiedEvent struct {
	Kind EventKind
	// Index is the candidate/content-block index this event belongs to.
	Index int

	Text         string
	ThinkingText string
	Signature    string

	ToolID        string
	ToolName      string
	ToolArgsDelta string

	StopReason string
	HadToolUse bool

	PromptTokens     int
	CompletionTokens int
}
