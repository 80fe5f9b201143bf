package gemini

import "github.com/soilSpoon/llmux/internal/domain/dialect"

// ToConversation converts a Gemini request into the dialect-agnostic
// conversation tree, folding SystemInstruction into conv.System.
func ToConversation(req Request) dialect.Conversation {
	conv := dialect.Conversation{}
	if req.SystemInstruction != nil {
		for _, p := range req.SystemInstruction.Parts {
			conv.System += p.Text
		}
	}
	for _, td := range req.Tools {
		for _, fd := range td.FunctionDeclarations {
			conv.Tools = append(conv.Tools, dialect.ToolDecl{Name: fd.Name, Description: fd.Description, Schema: fd.Parameters})
		}
	}
	for _, c := range req.Contents {
		conv.Messages = append(conv.Messages, contentToDialect(c))
	}
	return conv
}

func contentToDialect(c Content) dialect.Message {
	out := dialect.Message{Role: roleToDialect(c.Role)}
	for _, p := range c.Parts {
		out.Parts = append(out.Parts, partToDialect(p))
	}
	return out
}

func roleToDialect(role string) dialect.Role {
	if role == "model" {
		return dialect.RoleAssistant
	}
	return dialect.RoleUser
}

func roleFromDialect(role dialect.Role) string {
	if role == dialect.RoleAssistant {
		return "model"
	}
	return "user"
}

func partToDialect(p Part) dialect.Part {
	switch {
	case p.Thought != nil && *p.Thought:
		return dialect.Part{Kind: dialect.PartThinking, ThinkingText: p.Text, Signature: p.ThoughtSignature}
	case p.FunctionCall != nil:
		return dialect.Part{Kind: dialect.PartToolUse, ToolName: p.FunctionCall.Name, ToolArgs: p.FunctionCall.Args}
	case p.FunctionResponse != nil:
		return dialect.Part{Kind: dialect.PartToolResult, ToolName: p.FunctionResponse.Name, ToolResultContent: stringifyResponse(p.FunctionResponse.Response)}
	default:
		return dialect.Part{Kind: dialect.PartText, Text: p.Text}
	}
}

func stringifyResponse(m map[string]interface{}) string {
	if s, ok := m["result"].(string); ok {
		return s
	}
	if s, ok := m["content"].(string); ok {
		return s
	}
	return ""
}

// FromConversation rewrites conv back into a Gemini request's Contents and
// SystemInstruction, and replaces Tools when conv declares any; every other
// Request field in base is left untouched.
func FromConversation(base Request, conv dialect.Conversation) Request {
	out := base
	if conv.System != "" {
		out.SystemInstruction = &Content{Parts: []Part{{Text: conv.System}}}
	}
	if len(conv.Tools) > 0 {
		decls := make([]FunctionDeclarationSpec, 0, len(conv.Tools))
		for _, t := range conv.Tools {
			decls = append(decls, FunctionDeclarationSpec{Name: t.Name, Description: t.Description, Parameters: ConvertSchema(t.Schema)})
		}
		out.Tools = []ToolDeclaration{{FunctionDeclarations: decls}}
	}
	out.Contents = make([]Content, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out.Contents = append(out.Contents, contentFromDialect(m))
	}
	return out
}

func contentFromDialect(m dialect.Message) Content {
	out := Content{Role: roleFromDialect(m.Role)}
	for _, p := range m.Parts {
		out.Parts = append(out.Parts, partFromDialect(p))
	}
	return out
}

func partFromDialect(p dialect.Part) Part {
	truth := true
	switch p.Kind {
	case dialect.PartThinking:
		return Part{Thought: &truth, Text: p.ThinkingText, ThoughtSignature: p.Signature}
	case dialect.PartToolUse:
		return Part{FunctionCall: &FunctionCall{Name: p.ToolName, Args: p.ToolArgs}}
	case dialect.PartToolResult:
		return Part{FunctionResponse: &FunctionResponse{Name: p.ToolName, Response: map[string]interface{}{"result": p.ToolResultContent}}}
	default:
		return Part{Text: p.Text}
	}
}
