package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractModel_FromGeminiStylePath(t *testing.T) {
	model, action := ExtractModel("/v1beta/models/gemini-2.5-pro:streamGenerateContent", nil)
	assert.Equal(t, "gemini-2.5-pro", model)
	assert.Equal(t, "streamGenerateContent", action)
}

func TestExtractModel_FromPathWithoutAction(t *testing.T) {
	model, action := ExtractModel("/v1beta/models/gemini-2.5-pro", nil)
	assert.Equal(t, "gemini-2.5-pro", model)
	assert.Empty(t, action)
}

func TestExtractModel_FromBodyFieldWhenPathHasNoModel(t *testing.T) {
	model, action := ExtractModel("/v1/chat/completions", map[string]interface{}{"model": "gpt-4o"})
	assert.Equal(t, "gpt-4o", model)
	assert.Empty(t, action)
}

func TestExtractModel_EmptyWhenNeitherPresent(t *testing.T) {
	model, action := ExtractModel("/v1/chat/completions", nil)
	assert.Empty(t, model)
	assert.Empty(t, action)
}

func TestRewriteModel_SetsModelField(t *testing.T) {
	raw := []byte(`{"model":"smart","messages":[]}`)
	out, err := RewriteModel(raw, "claude-opus-4")
	require.NoError(t, err)
	assert.Contains(t, string(out), `"model":"claude-opus-4"`)
}

func TestRewriteModel_InvalidJSONReturnsOriginal(t *testing.T) {
	raw := []byte(`not json`)
	out, err := RewriteModel(raw, "claude-opus-4")
	require.Error(t, err)
	assert.Equal(t, raw, out)
}

func TestDetectStreamFlag(t *testing.T) {
	assert.True(t, DetectStreamFlag(map[string]interface{}{"stream": true}))
	assert.False(t, DetectStreamFlag(map[string]interface{}{"stream": false}))
	assert.False(t, DetectStreamFlag(map[string]interface{}{}))
	assert.False(t, DetectStreamFlag(nil))
}
