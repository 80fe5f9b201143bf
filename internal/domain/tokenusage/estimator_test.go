package tokenusage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForModel_PicksKnownEncodingByPrefix(t *testing.T) {
	e := ForModel("gpt-4o-2024-08-06")
	assert.Equal(t, "o200k_base", e.encoding)
}

func TestForModel_DefaultsToCl100kForUnknownModel(t *testing.T) {
	e := ForModel("some-unknown-model")
	assert.Equal(t, "cl100k_base", e.encoding)
}

func TestCount_EmptyTextIsZero(t *testing.T) {
	e := ForModel("gpt-4o")
	assert.Equal(t, 0, e.Count(""))
}

func TestCount_NonEmptyTextProducesPositiveCount(t *testing.T) {
	e := ForModel("gpt-4o")
	n := e.Count("The quick brown fox jumps over the lazy dog.")
	assert.Greater(t, n, 0)
}

func TestCount_IsDeterministicAcrossCalls(t *testing.T) {
	e := ForModel("gpt-4-turbo")
	text := "repeated estimation should be stable"
	assert.Equal(t, e.Count(text), e.Count(text))
}
