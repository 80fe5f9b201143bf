package thinking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soilSpoon/llmux/internal/domain/dialect"
)

func TestExtractInlineReasoningTag_NoTagReturnsUnchanged(t *testing.T) {
	thinkingText, remainder, ok := ExtractInlineReasoningTag("just an answer")
	assert.False(t, ok)
	assert.Empty(t, thinkingText)
	assert.Equal(t, "just an answer", remainder)
}

func TestExtractInlineReasoningTag_ExtractsThinkTag(t *testing.T) {
	thinkingText, remainder, ok := ExtractInlineReasoningTag("<think>let me reason</think>the answer")
	require.True(t, ok)
	assert.Equal(t, "let me reason", thinkingText)
	assert.Equal(t, "the answer", remainder)
}

func TestExtractInlineReasoningTag_HandlesThoughtAndAntthinkingVariants(t *testing.T) {
	_, _, ok := ExtractInlineReasoningTag("<thought>hmm</thought>answer")
	assert.True(t, ok)

	_, _, ok = ExtractInlineReasoningTag("<antthinking>hmm</antthinking>answer")
	assert.True(t, ok)
}

func TestNormalizeInlineReasoning_NonAssistantMessagesPassThrough(t *testing.T) {
	conv := dialect.Conversation{
		Messages: []dialect.Message{
			{Role: dialect.RoleUser, Parts: []dialect.Part{{Kind: dialect.PartText, Text: "<think>not mine</think>hi"}}},
		},
	}
	out := NormalizeInlineReasoning(conv)
	assert.Equal(t, conv.Messages[0], out.Messages[0])
}

func TestNormalizeInlineReasoning_SplitsTaggedAssistantText(t *testing.T) {
	conv := dialect.Conversation{
		Messages: []dialect.Message{
			{Role: dialect.RoleAssistant, Parts: []dialect.Part{
				{Kind: dialect.PartText, Text: "<think>reasoning here</think>final answer"},
			}},
		},
	}
	out := NormalizeInlineReasoning(conv)
	parts := out.Messages[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, dialect.PartThinking, parts[0].Kind)
	assert.Equal(t, "reasoning here", parts[0].ThinkingText)
	assert.Equal(t, dialect.PartText, parts[1].Kind)
	assert.Equal(t, "final answer", parts[1].Text)
}

func TestNormalizeInlineReasoning_DropsEmptyRemainder(t *testing.T) {
	conv := dialect.Conversation{
		Messages: []dialect.Message{
			{Role: dialect.RoleAssistant, Parts: []dialect.Part{
				{Kind: dialect.PartText, Text: "<think>only reasoning, no remainder</think>"},
			}},
		},
	}
	out := NormalizeInlineReasoning(conv)
	require.Len(t, out.Messages[0].Parts, 1)
	assert.Equal(t, dialect.PartThinking, out.Messages[0].Parts[0].Kind)
}

func TestNormalizeInlineReasoning_UntaggedTextUnchanged(t *testing.T) {
	conv := dialect.Conversation{
		Messages: []dialect.Message{
			{Role: dialect.RoleAssistant, Parts: []dialect.Part{
				{Kind: dialect.PartToolUse, ToolUseID: "t1"},
				{Kind: dialect.PartText, Text: "no tags here"},
			}},
		},
	}
	out := NormalizeInlineReasoning(conv)
	assert.Equal(t, conv.Messages[0].Parts, out.Messages[0].Parts)
}
