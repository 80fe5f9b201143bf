package anthropic

import "github.com/soilSpoon/llmux/internal/domain/dialect"

// ToConversation converts an Anthropic request into the dialect-agnostic
// conversation tree ThinkingRecoveryEngine and RequestTransform operate on.
func ToConversation(req Request) dialect.Conversation {
	conv := dialect.Conversation{System: req.System}
	for _, t := range req.Tools {
		conv.Tools = append(conv.Tools, dialect.ToolDecl{Name: t.Name, Description: t.Description, Schema: t.InputSchema})
	}
	for _, m := range req.Messages {
		conv.Messages = append(conv.Messages, messageToDialect(m))
	}
	return conv
}

func messageToDialect(m Message) dialect.Message {
	out := dialect.Message{Role: roleToDialect(m.Role)}
	for _, b := range m.Content {
		out.Parts = append(out.Parts, blockToPart(b))
	}
	return out
}

func roleToDialect(role string) dialect.Role {
	if role == "assistant" {
		return dialect.RoleAssistant
	}
	return dialect.RoleUser
}

func roleFromDialect(role dialect.Role) string {
	if role == dialect.RoleAssistant {
		return "assistant"
	}
	return "user"
}

func blockToPart(b ContentBlock) dialect.Part {
	switch b.Type {
	case "text":
		return dialect.Part{Kind: dialect.PartText, Text: b.Text}
	case "thinking":
		return dialect.Part{Kind: dialect.PartThinking, ThinkingText: b.Thinking, Signature: b.Signature}
	case "tool_use":
		return dialect.Part{Kind: dialect.PartToolUse, ToolUseID: b.ID, ToolName: b.Name, ToolArgs: b.Input}
	case "tool_result":
		return dialect.Part{Kind: dialect.PartToolResult, ToolResultID: b.ToolUseID, ToolResultContent: b.Content}
	default:
		return dialect.Part{Kind: dialect.PartOther, Raw: map[string]interface{}{"type": b.Type}}
	}
}

// FromConversation rewrites conv back into an Anthropic request's messages
// and system, and replaces Tools when conv declares any; every other
// Request field in base is left untouched.
func FromConversation(base Request, conv dialect.Conversation) Request {
	out := base
	out.System = conv.System
	if len(conv.Tools) > 0 {
		out.Tools = make([]Tool, 0, len(conv.Tools))
		for _, t := range conv.Tools {
			out.Tools = append(out.Tools, Tool{Name: t.Name, Description: t.Description, InputSchema: ConvertSchema(t.Schema)})
		}
	}
	out.Messages = make([]Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out.Messages = append(out.Messages, messageFromDialect(m))
	}
	return out
}

func messageFromDialect(m dialect.Message) Message {
	out := Message{Role: roleFromDialect(m.Role)}
	for _, p := range m.Parts {
		out.Content = append(out.Content, partToBlock(p))
	}
	return out
}

func partToBlock(p dialect.Part) ContentBlock {
	switch p.Kind {
	case dialect.PartText:
		return ContentBlock{Type: "text", Text: p.Text}
	case dialect.PartThinking:
		return ContentBlock{Type: "thinking", Thinking: p.ThinkingText, Signature: p.Signature}
	case dialect.PartToolUse:
		return ContentBlock{Type: "tool_use", ID: p.ToolUseID, Name: p.ToolName, Input: p.ToolArgs}
	case dialect.PartToolResult:
		return ContentBlock{Type: "tool_result", ToolUseID: p.ToolResultID, Content: p.ToolResultContent}
	default:
		return ContentBlock{Type: "text", Text: ""}
	}
}
