package stream

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soilSpoon/llmux/internal/domain/dialect"
	"github.com/soilSpoon/llmux/internal/domain/signature"
	"github.com/soilSpoon/llmux/internal/domain/signature/storage"
	"github.com/soilSpoon/llmux/internal/domain/thinking"
)

type countingRecordStorage struct {
	saved []storage.Record
}

func (s *countingRecordStorage) SaveRecord(r storage.Record) error {
	s.saved = append(s.saved, r)
	return nil
}
func (s *countingRecordStorage) GetRecord(sig string) (storage.Record, bool, error) {
	for _, r := range s.saved {
		if r.Signature == sig {
			return r, true, nil
		}
	}
	return storage.Record{}, false, nil
}
func (s *countingRecordStorage) Close() error { return nil }

func sseBody(frames ...string) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString("data: ")
		b.WriteString(f)
		b.WriteString("\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func TestRun_AnthropicToolUseStopReasonPatchedAcrossDialects(t *testing.T) {
	body := sseBody(
		`{"type":"message_start"}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"t1","name":"search"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
	)

	var out bytes.Buffer
	result, err := Run(context.Background(), strings.NewReader(body), &out, Options{
		Source:      dialect.DialectAnthropic,
		Target:      dialect.DialectOpenAI,
		IdleTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.True(t, result.SawToolUse)
	assert.Contains(t, out.String(), `"finish_reason":"tool_calls"`)
}

func TestRun_AnthropicTextOnlyStopReasonStaysEndTurn(t *testing.T) {
	body := sseBody(
		`{"type":"message_start"}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
	)

	var out bytes.Buffer
	result, err := Run(context.Background(), strings.NewReader(body), &out, Options{
		Source:      dialect.DialectAnthropic,
		Target:      dialect.DialectOpenAI,
		IdleTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.False(t, result.SawToolUse)
	assert.Contains(t, out.String(), `"finish_reason":"stop"`)
}

func TestRun_PassthroughStillPatchesToolUseStopReason(t *testing.T) {
	body := sseBody(
		`{"type":"message_start"}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"t1","name":"search"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
	)

	var out bytes.Buffer
	result, err := Run(context.Background(), strings.NewReader(body), &out, Options{
		Source:      dialect.DialectAnthropic,
		Target:      dialect.DialectAnthropic,
		IdleTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.True(t, result.SawToolUse)
	assert.Contains(t, out.String(), `"stop_reason":"tool_use"`)
	assert.NotContains(t, out.String(), `"stop_reason":"end_turn"`)
	// passthrough must still preserve the raw partial_json tool deltas
	assert.Contains(t, out.String(), `"partial_json"`)
}

func TestRun_PassthroughWhenSourceAndTargetShareWireFamily(t *testing.T) {
	body := sseBody(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`)

	var out bytes.Buffer
	_, err := Run(context.Background(), strings.NewReader(body), &out, Options{
		Source:      dialect.DialectAntigravity,
		Target:      dialect.DialectGemini,
		IdleTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"candidates"`)
}

func TestRun_CapturesSignatureFromGeminiFrameExactlyOnce(t *testing.T) {
	sig := strings.Repeat("s", 60)
	frame := `{"candidates":[{"content":{"parts":[{"thought":true,"text":"x","thoughtSignature":"` + sig + `"}]}}]}`
	// the same signature repeated across deltas must persist only once
	body := sseBody(frame, frame)

	backend := &countingRecordStorage{}
	store := signature.NewStore(backend)
	cache := signature.NewCache()
	engine := thinking.New(signature.NewGlobalSlot(), cache)

	var out bytes.Buffer
	_, err := Run(context.Background(), strings.NewReader(body), &out, Options{
		Source:      dialect.DialectAntigravity,
		Target:      dialect.DialectGemini,
		IdleTimeout: time.Second,
		Signature: &SignatureContext{
			SessionKey: "sess-1",
			Family:     "gemini",
			ProjectID:  "P",
			Provider:   "antigravity",
			Engine:     engine,
			Store:      store,
		},
	})
	require.NoError(t, err)

	require.Len(t, backend.saved, 1)
	assert.Equal(t, sig, backend.saved[0].Signature)
	assert.Equal(t, "P", backend.saved[0].ProjectID)

	restored, ok, err := cache.Restore(signature.CacheKey{
		SessionID:   "sess-1",
		ModelFamily: "gemini",
		TextHash:    signature.TextHash("x"),
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sig, restored)
}

func TestRun_EstimatesUsageWhenProviderOmitsIt(t *testing.T) {
	body := sseBody(
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hello world"}}`,
		`{"type":"content_block_stop","index":0}`,
	)

	var out bytes.Buffer
	result, err := Run(context.Background(), strings.NewReader(body), &out, Options{
		Source:      dialect.DialectAnthropic,
		Target:      dialect.DialectOpenAI,
		Model:       "gpt-4o",
		IdleTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.True(t, result.UsageEstimated)
	assert.Greater(t, result.CompletionTokens, 0)
}
