package stream

import "encoding/json"

// openAIChunk mirrors openai.StreamChunkData but adds the reasoning_content
// field several OpenAI-compatible proxies (opencode-zen among them) use to
// carry thinking text.
type openAIChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
}

type openAIChoice struct {
	Index        int         `json:"index"`
	Delta        openAIDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type openAIDelta struct {
	Content          string            `json:"content,omitempty"`
	ReasoningContent string            `json:"reasoning_content,omitempty"`
	ToolCalls        []openAIDeltaTool `json:"tool_calls,omitempty"`
}

type openAIDeltaTool struct {
	Index    int                 `json:"index"`
	ID       string              `json:"id,omitempty"`
	Type     string              `json:"type,omitempty"`
	Function openAIDeltaFunction `json:"function"`
}

type openAIDeltaFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIEmitter re-renders UnifiedEvents as OpenAI Chat Completions SSE
// chunks. OpenAI has no block-start/block-stop framing, so ToolUseStop
// produces no frame.
type OpenAIEmitter struct{}

func NewOpenAIEmitter() *OpenAIEmitter { return &OpenAIEmitter{} }

func (e *OpenAIEmitter) frame(chunk openAIChunk) Frame {
	b, _ := json.Marshal(chunk)
	return Frame{Data: string(b)}
}

func (e *OpenAIEmitter) Emit(evt UnifiedEvent) []Frame {
	switch evt.Kind {
	case EventTextDelta:
		if evt.Text == "" {
			return nil
		}
		return []Frame{e.frame(openAIChunk{Choices: []openAIChoice{{Delta: openAIDelta{Content: evt.Text}}}})}

	case EventThinkingDelta:
		if evt.ThinkingText == "" {
			return nil
		}
		return []Frame{e.frame(openAIChunk{Choices: []openAIChoice{{Delta: openAIDelta{ReasoningContent: evt.ThinkingText}}}})}

	case EventToolUseStart:
		return []Frame{e.frame(openAIChunk{Choices: []openAIChoice{{Delta: openAIDelta{
			ToolCalls: []openAIDeltaTool{{Index: evt.Index, ID: evt.ToolID, Type: "function", Function: openAIDeltaFunction{Name: evt.ToolName}}},
		}}}})}

	case EventToolUseDelta:
		return []Frame{e.frame(openAIChunk{Choices: []openAIChoice{{Delta: openAIDelta{
			ToolCalls: []openAIDeltaTool{{Index: evt.Index, Function: openAIDeltaFunction{Arguments: evt.ToolArgsDelta}}},
		}}}})}

	case EventToolUseStop:
		return nil

	case EventStopReason:
		reason := mapStopReasonToOpenAI(evt.StopReason, evt.HadToolUse)
		return []Frame{e.frame(openAIChunk{Choices: []openAIChoice{{FinishReason: &reason}}})}

	case EventUsage:
		return []Frame{e.frame(openAIChunk{Usage: &openAIUsage{
			PromptTokens:     evt.PromptTokens,
			CompletionTokens: evt.CompletionTokens,
			TotalTokens:      evt.PromptTokens + evt.CompletionTokens,
		}})}
	}
	return nil
}

func mapStopReasonToOpenAI(reason string, hadToolUse bool) string {
	switch reason {
	case "tool_use":
		return "tool_calls"
	case "end_turn", "stop", "STOP":
		if hadToolUse {
			return "tool_calls"
		}
		return "stop"
	case "max_tokens", "MAX_TOKENS", "length":
		return "length"
	default:
		return "stop"
	}
}
