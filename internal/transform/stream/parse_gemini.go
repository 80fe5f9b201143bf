package stream

import (
	"encoding/json"

	"github.com/soilSpoon/llmux/internal/dialect/gemini"
)

// ParseGeminiFrame decodes one Gemini generateContent streaming frame into
// zero or more UnifiedEvents. Unlike the OpenAI/Anthropic dialects, Gemini
// has no explicit block-start/block-stop framing: each part is fully formed
// the moment it appears, so ToolUseStart and ToolUseStop are emitted
// together whenever a functionCall part is seen.
func ParseGeminiFrame(f Frame) ([]UnifiedEvent, error) {
	if f.Done() {
		return nil, nil
	}

	var resp gemini.Response
	if err := json.Unmarshal([]byte(f.Data), &resp); err != nil {
		return nil, err
	}

	var out []UnifiedEvent
	if resp.UsageMetadata != nil {
		out = append(out, UnifiedEvent{
			Kind:             EventUsage,
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
		})
	}

	if len(resp.Candidates) == 0 {
		return out, nil
	}
	candidate := resp.Candidates[0]

	hadToolUse := false
	for idx, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			hadToolUse = true
			argsJSON, _ := json.Marshal(part.FunctionCall.Args)
			out = append(out,
				UnifiedEvent{Kind: EventToolUseStart, Index: idx, ToolName: part.FunctionCall.Name},
				UnifiedEvent{Kind: EventToolUseDelta, Index: idx, ToolArgsDelta: string(argsJSON)},
				UnifiedEvent{Kind: EventToolUseStop, Index: idx},
			)
		case part.Thought != nil && *part.Thought:
			out = append(out, UnifiedEvent{
				Kind:         EventThinkingDelta,
				Index:        idx,
				ThinkingText: part.Text,
				Signature:    part.ThoughtSignature,
			})
		case part.Text != "":
			out = append(out, UnifiedEvent{Kind: EventTextDelta, Index: idx, Text: part.Text})
		}
	}

	if candidate.FinishReason != "" {
		out = append(out, UnifiedEvent{Kind: EventStopReason, StopReason: candidate.FinishReason, HadToolUse: hadToolUse})
	}

	return out, nil
}
