package stream

import (
	"encoding/json"

	"github.com/soilSpoon/llmux/internal/dialect/gemini"
)

// GeminiEmitter re-renders UnifiedEvents as Gemini generateContent
// streaming frames. Gemini has no incremental tool-call framing, so
// argument deltas are buffered per index and flushed as a single
// functionCall part on ToolUseStop.
type GeminiEmitter struct {
	pendingArgs map[int]string
	pendingName map[int]string
}

func NewGeminiEmitter() *GeminiEmitter {
	return &GeminiEmitter{pendingArgs: map[int]string{}, pendingName: map[int]string{}}
}

func (e *GeminiEmitter) frame(resp gemini.Response) Frame {
	b, _ := json.Marshal(resp)
	return Frame{Data: string(b)}
}

func (e *GeminiEmitter) Emit(evt UnifiedEvent) []Frame {
	switch evt.Kind {
	case EventTextDelta:
		if evt.Text == "" {
			return nil
		}
		return []Frame{e.candidateFrame(gemini.Part{Text: evt.Text}, "")}

	case EventThinkingDelta:
		thought := true
		return []Frame{e.candidateFrame(gemini.Part{
			Text:             evt.ThinkingText,
			Thought:          &thought,
			ThoughtSignature: evt.Signature,
		}, "")}

	case EventToolUseStart:
		e.pendingName[evt.Index] = evt.ToolName
		return nil

	case EventToolUseDelta:
		e.pendingArgs[evt.Index] += evt.ToolArgsDelta
		return nil

	case EventToolUseStop:
		name := e.pendingName[evt.Index]
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(e.pendingArgs[evt.Index]), &args)
		delete(e.pendingName, evt.Index)
		delete(e.pendingArgs, evt.Index)
		return []Frame{e.candidateFrame(gemini.Part{FunctionCall: &gemini.FunctionCall{Name: name, Args: args}}, "")}

	case EventStopReason:
		return []Frame{e.candidateFrame(gemini.Part{}, mapStopReasonToGemini(evt.StopReason))}

	case EventUsage:
		return []Frame{e.frame(gemini.Response{UsageMetadata: &gemini.UsageMetadata{
			PromptTokenCount:     evt.PromptTokens,
			CandidatesTokenCount: evt.CompletionTokens,
			TotalTokenCount:      evt.PromptTokens + evt.CompletionTokens,
		}})}
	}
	return nil
}

func (e *GeminiEmitter) candidateFrame(part gemini.Part, finishReason string) Frame {
	candidate := gemini.Candidate{FinishReason: finishReason}
	if part != (gemini.Part{}) {
		candidate.Content = gemini.Content{Role: "model", Parts: []gemini.Part{part}}
	}
	return e.frame(gemini.Response{Candidates: []gemini.Candidate{candidate}})
}

func mapStopReasonToGemini(reason string) string {
	switch reason {
	case "max_tokens", "length":
		return "MAX_TOKENS"
	default:
		return "STOP"
	}
}
