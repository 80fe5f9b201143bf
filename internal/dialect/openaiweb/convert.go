package openaiweb

import (
	"github.com/soilSpoon/llmux/internal/dialect/openai"
	"github.com/soilSpoon/llmux/internal/domain/dialect"
)

// ToConversation converts a Codex body into the dialect-agnostic
// conversation tree.
func ToConversation(b Body) dialect.Conversation {
	conv := dialect.Conversation{}
	for _, t := range b.Tools {
		conv.Tools = append(conv.Tools, dialect.ToolDecl{Name: t.Name, Description: t.Description, Schema: t.Parameters})
	}
	for _, item := range b.Input {
		switch item.Type {
		case "function_call":
			conv.Messages = append(conv.Messages, dialect.Message{
				Role: dialect.RoleAssistant,
				Parts: []dialect.Part{{
					Kind:      dialect.PartToolUse,
					ToolUseID: item.CallID,
					ToolName:  item.Name,
				}},
			})
		case "function_call_output":
			conv.Messages = append(conv.Messages, dialect.Message{
				Role: dialect.RoleUser,
				Parts: []dialect.Part{{
					Kind:              dialect.PartToolResult,
					ToolResultID:      item.CallID,
					ToolResultContent: item.Output,
				}},
			})
		default:
			role := dialect.RoleUser
			if item.Role == "assistant" {
				role = dialect.RoleAssistant
			}
			if item.Role == "system" {
				for _, c := range item.Content {
					conv.System += c.Text
				}
				continue
			}
			msg := dialect.Message{Role: role}
			for _, c := range item.Content {
				msg.Parts = append(msg.Parts, dialect.Part{Kind: dialect.PartText, Text: c.Text})
			}
			conv.Messages = append(conv.Messages, msg)
		}
	}
	return conv
}

// BuildCodexBody converts conv into a Codex request body for model, with
// an optional reasoning effort override. Tool declarations come from conv
// when it declares any, otherwise from base.
func BuildCodexBody(model string, conv dialect.Conversation, base Body, reasoningEffort string) Body {
	out := Body{Model: model, Tools: base.Tools, Stream: base.Stream}
	if len(conv.Tools) > 0 {
		out.Tools = make([]Tool, 0, len(conv.Tools))
		for _, t := range conv.Tools {
			out.Tools = append(out.Tools, Tool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Schema})
		}
	}
	if reasoningEffort != "" {
		out.Reasoning = &ReasoningConfig{Effort: reasoningEffort}
	}
	if conv.System != "" {
		out.Input = append(out.Input, InputItem{Type: "message", Role: "system", Content: []InputContent{{Type: "input_text", Text: conv.System}}})
	}
	for _, m := range conv.Messages {
		out.Input = append(out.Input, itemsFromDialect(m)...)
	}
	return out
}

func itemsFromDialect(m dialect.Message) []InputItem {
	role := "user"
	textType := "input_text"
	if m.Role == dialect.RoleAssistant {
		role = "assistant"
		textType = "output_text"
	}

	var items []InputItem
	var text string
	for _, p := range m.Parts {
		switch p.Kind {
		case dialect.PartText:
			text += p.Text
		case dialect.PartToolUse:
			items = append(items, InputItem{
				Type:      "function_call",
				CallID:    p.ToolUseID,
				Name:      p.ToolName,
				Arguments: openai.MarshalToolCallArgs(p.ToolArgs),
			})
		case dialect.PartToolResult:
			items = append(items, InputItem{Type: "function_call_output", CallID: p.ToolResultID, Output: p.ToolResultContent})
		}
	}
	if text != "" {
		items = append([]InputItem{{Type: "message", Role: role, Content: []InputContent{{Type: textType, Text: text}}}}, items...)
	}
	return items
}
