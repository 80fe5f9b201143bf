package stream

import (
	"encoding/json"

	"github.com/soilSpoon/llmux/internal/dialect/openai"
)

// ParseOpenAIFrame decodes one OpenAI Chat Completions SSE frame into zero
// or more UnifiedEvents. toolSeen tracks which tool_call indexes have
// already emitted a ToolUseStart, since OpenAI repeats the index on every
// delta fragment instead of framing blocks explicitly.
func ParseOpenAIFrame(f Frame, toolSeen map[int]bool) ([]UnifiedEvent, error) {
	if f.Done() {
		return nil, nil
	}

	var chunk openai.StreamChunkData
	if err := json.Unmarshal([]byte(f.Data), &chunk); err != nil {
		return nil, err
	}

	var out []UnifiedEvent
	if chunk.Usage != nil {
		out = append(out, UnifiedEvent{
			Kind:             EventUsage,
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
		})
	}

	if len(chunk.Choices) == 0 {
		return out, nil
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		out = append(out, UnifiedEvent{Kind: EventTextDelta, Text: choice.Delta.Content})
	}

	for _, tc := range choice.Delta.ToolCalls {
		idx := tc.Index
		if !toolSeen[idx] && (tc.ID != "" || tc.Function.Name != "") {
			toolSeen[idx] = true
			out = append(out, UnifiedEvent{
				Kind:     EventToolUseStart,
				Index:    idx,
				ToolID:   tc.ID,
				ToolName: tc.Function.Name,
			})
		}
		if tc.Function.Arguments != "" {
			out = append(out, UnifiedEvent{Kind: EventToolUseDelta, Index: idx, ToolArgsDelta: tc.Function.Arguments})
		}
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		for idx := range toolSeen {
			out = append(out, UnifiedEvent{Kind: EventToolUseStop, Index: idx})
		}
		out = append(out, UnifiedEvent{
			Kind:       EventStopReason,
			StopReason: *choice.FinishReason,
			HadToolUse: len(toolSeen) > 0,
		})
	}

	return out, nil
}
