package openai

import (
	"encoding/json"

	"github.com/soilSpoon/llmux/internal/domain/dialect"
)

// ToConversation converts an OpenAI Chat Completions request into the
// dialect-agnostic conversation tree. A "system" role message is folded
// into conv.System rather than kept as a message, matching how the other
// two dialects carry system instructions out of band; "tool" role messages
// become ToolResult parts attached to a synthetic user message, since
// OpenAI represents tool results as standalone messages rather than
// content blocks within a user turn.
func ToConversation(req Request) dialect.Conversation {
	conv := dialect.Conversation{}
	for _, t := range req.Tools {
		conv.Tools = append(conv.Tools, dialect.ToolDecl{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Schema:      t.Function.Parameters,
		})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			conv.System += m.Content
		case "tool":
			conv.Messages = append(conv.Messages, dialect.Message{
				Role: dialect.RoleUser,
				Parts: []dialect.Part{{
					Kind:              dialect.PartToolResult,
					ToolResultID:      m.ToolCallID,
					ToolResultContent: m.Content,
				}},
			})
		default:
			conv.Messages = append(conv.Messages, messageToDialect(m))
		}
	}
	return conv
}

func messageToDialect(m Message) dialect.Message {
	role := dialect.RoleUser
	if m.Role == "assistant" {
		role = dialect.RoleAssistant
	}
	out := dialect.Message{Role: role}
	if m.Content != "" {
		out.Parts = append(out.Parts, dialect.Part{Kind: dialect.PartText, Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.Parts = append(out.Parts, dialect.Part{
			Kind:      dialect.PartToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.Function.Name,
			ToolArgs:  args,
		})
	}
	return out
}

// FromConversation rewrites conv back into an OpenAI request's Messages,
// re-emitting conv.System as a leading "system" message, and replaces Tools
// when conv declares any; every other Request field in base is left
// untouched.
func FromConversation(base Request, conv dialect.Conversation) Request {
	out := base
	if len(conv.Tools) > 0 {
		out.Tools = make([]Tool, 0, len(conv.Tools))
		for _, t := range conv.Tools {
			out.Tools = append(out.Tools, Tool{
				Type:     "function",
				Function: ToolFunction{Name: t.Name, Description: t.Description, Parameters: ConvertSchema(t.Schema)},
			})
		}
	}
	out.Messages = out.Messages[:0]
	if conv.System != "" {
		out.Messages = append(out.Messages, Message{Role: "system", Content: conv.System})
	}
	for _, m := range conv.Messages {
		out.Messages = append(out.Messages, messagesFromDialect(m)...)
	}
	return out
}

// messagesFromDialect may expand one dialect.Message into multiple OpenAI
// messages, since tool results must be emitted as standalone "tool" role
// messages rather than as content blocks.
func messagesFromDialect(m dialect.Message) []Message {
	role := "user"
	if m.Role == dialect.RoleAssistant {
		role = "assistant"
	}

	var out []Message
	var text string
	var toolCalls []ToolCall

	for _, p := range m.Parts {
		switch p.Kind {
		case dialect.PartText:
			text += p.Text
		case dialect.PartToolUse:
			toolCalls = append(toolCalls, ToolCall{
				ID:   p.ToolUseID,
				Type: "function",
				Function: ToolCallFunc{
					Name:      p.ToolName,
					Arguments: MarshalToolCallArgs(p.ToolArgs),
				},
			})
		case dialect.PartToolResult:
			out = append(out, Message{Role: "tool", ToolCallID: p.ToolResultID, Content: p.ToolResultContent})
		case dialect.PartThinking:
			// OpenAI errors on unknown fields; thinking is never re-emitted
			// on this dialect (ShouldCacheSignatures gates it out upstream).
		}
	}

	if text != "" || len(toolCalls) > 0 {
		out = append([]Message{{Role: role, Content: text, ToolCalls: toolCalls}}, out...)
	}
	return out
}
