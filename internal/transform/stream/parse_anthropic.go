package stream

import "encoding/json"

// AnthropicParseState carries the per-stream bookkeeping ParseAnthropicFrame
// needs across frames: blockTypes (keyed by index) since content_block_delta
// frames don't repeat the type, and hadToolUse, which must survive past its
// block's content_block_stop since that frame always arrives before the
// trailing message_delta that needs to know about it.
type AnthropicParseState struct {
	blockTypes map[int]string
	hadToolUse bool
}

func NewAnthropicParseState() *AnthropicParseState {
	return &AnthropicParseState{blockTypes: map[int]string{}}
}

// ParseAnthropicFrame decodes one Anthropic SSE frame into zero or more
// UnifiedEvents, using st to track content-block type across frames.
func ParseAnthropicFrame(f Frame, st *AnthropicParseState) ([]UnifiedEvent, error) {
	if f.Done() {
		return nil, nil
	}

	var evt struct {
		Type         string `json:"type"`
		Index        int    `json:"index"`
		ContentBlock *struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"content_block"`
		Delta *struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			PartialJSON string `json:"partial_json"`
			Thinking    string `json:"thinking"`
			Signature   string `json:"signature"`
			StopReason  string `json:"stop_reason"`
		} `json:"delta"`
		Usage *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal([]byte(f.Data), &evt); err != nil {
		return nil, err
	}

	switch evt.Type {
	case "message_start":
		st.hadToolUse = false
		return nil, nil

	case "content_block_start":
		if evt.ContentBlock == nil {
			return nil, nil
		}
		st.blockTypes[evt.Index] = evt.ContentBlock.Type
		if evt.ContentBlock.Type == "tool_use" {
			st.hadToolUse = true
			return []UnifiedEvent{{
				Kind:     EventToolUseStart,
				Index:    evt.Index,
				ToolID:   evt.ContentBlock.ID,
				ToolName: evt.ContentBlock.Name,
			}}, nil
		}
		return nil, nil

	case "content_block_stop":
		kind := st.blockTypes[evt.Index]
		delete(st.blockTypes, evt.Index)
		if kind == "tool_use" {
			return []UnifiedEvent{{Kind: EventToolUseStop, Index: evt.Index}}, nil
		}
		return nil, nil

	case "content_block_delta":
		if evt.Delta == nil {
			return nil, nil
		}
		switch evt.Delta.Type {
		case "text_delta":
			return []UnifiedEvent{{Kind: EventTextDelta, Index: evt.Index, Text: evt.Delta.Text}}, nil
		case "input_json_delta":
			return []UnifiedEvent{{Kind: EventToolUseDelta, Index: evt.Index, ToolArgsDelta: evt.Delta.PartialJSON}}, nil
		case "thinking_delta":
			return []UnifiedEvent{{Kind: EventThinkingDelta, Index: evt.Index, ThinkingText: evt.Delta.Thinking}}, nil
		case "signature_delta":
			return []UnifiedEvent{{Kind: EventThinkingDelta, Index: evt.Index, Signature: evt.Delta.Signature}}, nil
		}
		return nil, nil

	case "message_delta":
		var out []UnifiedEvent
		if evt.Delta != nil && evt.Delta.StopReason != "" {
			out = append(out, UnifiedEvent{Kind: EventStopReason, StopReason: evt.Delta.StopReason, HadToolUse: st.hadToolUse})
		}
		if evt.Usage != nil {
			out = append(out, UnifiedEvent{Kind: EventUsage, PromptTokens: evt.Usage.InputTokens, CompletionTokens: evt.Usage.OutputTokens})
		}
		return out, nil

	default:
		return nil, nil
	}
}
