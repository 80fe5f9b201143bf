package stream

import "encoding/json"

// AnthropicEmitter re-renders UnifiedEvents as Anthropic Messages SSE
// frames, tracking open content blocks the way the source parser tracks
// blockTypes so index reuse after a content_block_stop is handled safely.
type AnthropicEmitter struct {
	open map[int]string
}

func NewAnthropicEmitter() *AnthropicEmitter {
	return &AnthropicEmitter{open: map[int]string{}}
}

func (e *AnthropicEmitter) frame(event string, data interface{}) Frame {
	b, _ := json.Marshal(data)
	return Frame{Event: event, Data: string(b)}
}

// Emit renders the frames a single UnifiedEvent produces. An event may open
// an implicit content block the source dialect never framed explicitly
// (e.g. OpenAI/Gemini text deltas arrive without a block-start).
func (e *AnthropicEmitter) Emit(evt UnifiedEvent) []Frame {
	var out []Frame

	switch evt.Kind {
	case EventTextDelta:
		if evt.Text == "" {
			return nil
		}
		if e.open[evt.Index] != "text" {
			out = append(out, e.startBlock(evt.Index, "text", "", ""))
		}
		out = append(out, e.frame("content_block_delta", map[string]interface{}{
			"type":  "content_block_delta",
			"index": evt.Index,
			"delta": map[string]string{"type": "text_delta", "text": evt.Text},
		}))

	case EventThinkingDelta:
		if e.open[evt.Index] != "thinking" {
			out = append(out, e.startBlock(evt.Index, "thinking", "", ""))
		}
		if evt.ThinkingText != "" {
			out = append(out, e.frame("content_block_delta", map[string]interface{}{
				"type":  "content_block_delta",
				"index": evt.Index,
				"delta": map[string]string{"type": "thinking_delta", "thinking": evt.ThinkingText},
			}))
		}
		if evt.Signature != "" {
			out = append(out, e.frame("content_block_delta", map[string]interface{}{
				"type":  "content_block_delta",
				"index": evt.Index,
				"delta": map[string]string{"type": "signature_delta", "signature": evt.Signature},
			}))
		}

	case EventToolUseStart:
		out = append(out, e.startBlock(evt.Index, "tool_use", evt.ToolID, evt.ToolName))

	case EventToolUseDelta:
		out = append(out, e.frame("content_block_delta", map[string]interface{}{
			"type":  "content_block_delta",
			"index": evt.Index,
			"delta": map[string]string{"type": "input_json_delta", "partial_json": evt.ToolArgsDelta},
		}))

	case EventToolUseStop:
		out = append(out, e.closeBlock(evt.Index))

	case EventStopReason:
		stopReason := evt.StopReason
		if stopReason == "end_turn" && evt.HadToolUse {
			stopReason = "tool_use"
		}
		out = append(out, e.frame("message_delta", map[string]interface{}{
			"type":  "message_delta",
			"delta": map[string]string{"stop_reason": stopReason},
		}))

	case EventUsage:
		out = append(out, e.frame("message_delta", map[string]interface{}{
			"type": "message_delta",
			"usage": map[string]int{
				"input_tokens":  evt.PromptTokens,
				"output_tokens": evt.CompletionTokens,
			},
		}))
	}

	return out
}

func (e *AnthropicEmitter) startBlock(index int, kind, id, name string) Frame {
	e.open[index] = kind
	block := map[string]interface{}{"type": kind}
	if id != "" {
		block["id"] = id
	}
	if name != "" {
		block["name"] = name
	}
	return e.frame("content_block_start", map[string]interface{}{
		"type":          "content_block_start",
		"index":         index,
		"content_block": block,
	})
}

func (e *AnthropicEmitter) closeBlock(index int) Frame {
	delete(e.open, index)
	return e.frame("content_block_stop", map[string]interface{}{
		"type":  "content_block_stop",
		"index": index,
	})
}
