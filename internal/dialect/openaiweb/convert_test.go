package openaiweb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soilSpoon/llmux/internal/domain/dialect"
)

func TestToConversation_MapsInputItemKinds(t *testing.T) {
	b := Body{Input: []InputItem{
		{Type: "message", Role: "system", Content: []InputContent{{Type: "input_text", Text: "be helpful"}}},
		{Type: "message", Role: "user", Content: []InputContent{{Type: "input_text", Text: "use the tool"}}},
		{Type: "function_call", CallID: "call-1", Name: "search"},
		{Type: "function_call_output", CallID: "call-1", Output: "ok"},
	}}

	conv := ToConversation(b)
	require.Equal(t, "be helpful", conv.System)
	require.Len(t, conv.Messages, 3)

	assert.Equal(t, dialect.RoleUser, conv.Messages[0].Role)

	call := conv.Messages[1]
	assert.Equal(t, dialect.RoleAssistant, call.Role)
	assert.Equal(t, dialect.PartToolUse, call.Parts[0].Kind)
	assert.Equal(t, "call-1", call.Parts[0].ToolUseID)
	assert.Equal(t, "search", call.Parts[0].ToolName)

	result := conv.Messages[2]
	require.True(t, result.HasToolResult())
	assert.Equal(t, "ok", result.Parts[0].ToolResultContent)
}

func TestBuildCodexBody_EmitsSystemFirstAndSplitsTextFromCalls(t *testing.T) {
	conv := dialect.Conversation{
		System: "be concise",
		Messages: []dialect.Message{
			{Role: dialect.RoleUser, Parts: []dialect.Part{{Kind: dialect.PartText, Text: "hi"}}},
			{Role: dialect.RoleAssistant, Parts: []dialect.Part{
				{Kind: dialect.PartText, Text: "sure"},
				{Kind: dialect.PartToolUse, ToolUseID: "call-1", ToolName: "search", ToolArgs: map[string]interface{}{"q": "go"}},
			}},
			{Role: dialect.RoleUser, Parts: []dialect.Part{{Kind: dialect.PartToolResult, ToolResultID: "call-1", ToolResultContent: "ok"}}},
		},
	}
	base := Body{Tools: []Tool{{Type: "function", Name: "search"}}, Stream: true}

	out := BuildCodexBody("gpt-5-codex", conv, base, "high")
	assert.Equal(t, "gpt-5-codex", out.Model)
	assert.True(t, out.Stream)
	require.Len(t, out.Tools, 1)
	require.NotNil(t, out.Reasoning)
	assert.Equal(t, "high", out.Reasoning.Effort)

	require.Len(t, out.Input, 5)
	assert.Equal(t, "system", out.Input[0].Role)
	assert.Equal(t, "input_text", out.Input[0].Content[0].Type)

	assert.Equal(t, "user", out.Input[1].Role)

	asst := out.Input[2]
	assert.Equal(t, "assistant", asst.Role)
	assert.Equal(t, "output_text", asst.Content[0].Type)
	assert.Equal(t, "sure", asst.Content[0].Text)

	call := out.Input[3]
	assert.Equal(t, "function_call", call.Type)
	assert.Equal(t, "call-1", call.CallID)
	assert.JSONEq(t, `{"q":"go"}`, call.Arguments)

	output := out.Input[4]
	assert.Equal(t, "function_call_output", output.Type)
	assert.Equal(t, "ok", output.Output)
}

func TestBuildCodexBody_NoReasoningWhenEffortEmpty(t *testing.T) {
	out := BuildCodexBody("gpt-5-codex", dialect.Conversation{}, Body{}, "")
	assert.Nil(t, out.Reasoning)
	assert.Empty(t, out.Input)
}
