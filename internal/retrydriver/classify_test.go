package retrydriver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouter struct {
	resolveProvider string
	resolveModel    string
	rateLimitCalls  int
	lastRetryAfter  int64
}

func (f *fakeRouter) ResolveModel(requestedModel string) (string, string) {
	return f.resolveProvider, f.resolveModel
}

func (f *fakeRouter) HandleRateLimit(provider, model string, retryAfterMs int64) time.Duration {
	f.rateLimitCalls++
	f.lastRetryAfter = retryAfterMs
	return time.Duration(retryAfterMs) * time.Millisecond
}

type fakeAccounts struct {
	marked         []int
	allRateLimited bool
	nextAvailable  int
}

func (f *fakeAccounts) MarkRateLimited(provider string, index int, durationMs int64) {
	f.marked = append(f.marked, index)
}

func (f *fakeAccounts) AreAllRateLimited(provider string, n int) bool {
	return f.allRateLimited
}

func (f *fakeAccounts) GetNextAvailable(provider string, n int) int {
	return f.nextAvailable
}

func TestHandleUpstreamError_429SameTargetRetries(t *testing.T) {
	router := &fakeRouter{resolveProvider: "anthropic", resolveModel: "claude-opus-4"}
	accounts := &fakeAccounts{nextAvailable: 0}

	d := HandleUpstreamError(Input{
		Status:              429,
		Provider:            "anthropic",
		Model:               "claude-opus-4",
		OriginalModel:       "smart",
		AccountsPerProvider: 2,
		Router:              router,
		Accounts:            accounts,
	})

	assert.Equal(t, OutcomeRetry, d.Outcome)
	assert.Equal(t, 1, router.rateLimitCalls)
	assert.Len(t, accounts.marked, 1)
	assert.False(t, d.AccountIndexChanged)
}

func TestHandleUpstreamError_429RotatesToNextAvailableAccount(t *testing.T) {
	router := &fakeRouter{resolveProvider: "anthropic", resolveModel: "claude-opus-4"}
	accounts := &fakeAccounts{nextAvailable: 2}

	d := HandleUpstreamError(Input{
		Status:              429,
		Provider:            "anthropic",
		Model:               "claude-opus-4",
		OriginalModel:       "smart",
		AccountIndex:        0,
		AccountsPerProvider: 3,
		Router:              router,
		Accounts:            accounts,
	})

	require.Equal(t, OutcomeRetry, d.Outcome)
	assert.True(t, d.AccountIndexChanged)
	assert.Equal(t, 2, d.NewAccountIndex)
}

func TestHandleUpstreamError_429DifferentTargetSwitchesModel(t *testing.T) {
	router := &fakeRouter{resolveProvider: "openai", resolveModel: "gpt-4o"}
	accounts := &fakeAccounts{}

	d := HandleUpstreamError(Input{
		Status:        429,
		Provider:      "anthropic",
		Model:         "claude-opus-4",
		OriginalModel: "smart",
		Router:        router,
		Accounts:      accounts,
	})

	require.Equal(t, OutcomeSwitchModel, d.Outcome)
	assert.Equal(t, "openai", d.NewProvider)
	assert.Equal(t, "gpt-4o", d.NewModel)
}

func TestHandleUpstreamError_429AllAccountsExhaustedGivesAllCooldown(t *testing.T) {
	router := &fakeRouter{resolveProvider: "anthropic", resolveModel: "claude-opus-4"}
	accounts := &fakeAccounts{allRateLimited: true}

	d := HandleUpstreamError(Input{
		Status:              429,
		Provider:            "anthropic",
		Model:               "claude-opus-4",
		OriginalModel:       "smart",
		AccountsPerProvider: 3,
		Router:              router,
		Accounts:            accounts,
	})

	assert.Equal(t, OutcomeAllCooldown, d.Outcome)
}

func TestHandleUpstreamError_401WithAlternateCredentialRetries(t *testing.T) {
	accounts := &fakeAccounts{nextAvailable: 1}
	d := HandleUpstreamError(Input{
		Status:       401,
		AccountIndex: 0,
		Accounts:     accounts,
	})
	assert.Equal(t, OutcomeRetry, d.Outcome)
	assert.True(t, d.AccountIndexChanged)
	assert.Equal(t, 1, d.NewAccountIndex)
}

func TestHandleUpstreamError_403NoAlternateCredentialThrows(t *testing.T) {
	accounts := &fakeAccounts{nextAvailable: 0}
	d := HandleUpstreamError(Input{
		Status:       403,
		AccountIndex: 0,
		Accounts:     accounts,
	})
	assert.Equal(t, OutcomeThrow, d.Outcome)
}

func TestHandleUpstreamError_404AntigravityProjectNotFoundSwapsProject(t *testing.T) {
	d := HandleUpstreamError(Input{
		Status:           404,
		Provider:         "antigravity",
		Body:             `{"error":"requested project could not be found"}`,
		CurrentProjectID: "some-project",
		Markers:          DefaultErrorMarkers(),
	})
	require.Equal(t, OutcomeRetry, d.Outcome)
	assert.True(t, d.ProjectIDChanged)
	assert.Equal(t, antigravityDefaultProjectID, d.NewProjectID)
}

func TestHandleUpstreamError_404AntigravityUnrelatedBodyThrows(t *testing.T) {
	d := HandleUpstreamError(Input{
		Status:   404,
		Provider: "antigravity",
		Body:     "not found: route",
		Markers:  DefaultErrorMarkers(),
	})
	assert.Equal(t, OutcomeThrow, d.Outcome)
}

func TestHandleUpstreamError_400CorruptedSignatureStripsAndRetries(t *testing.T) {
	d := HandleUpstreamError(Input{
		Status:  400,
		Body:    "error: corrupted thought signature",
		Markers: DefaultErrorMarkers(),
	})
	require.Equal(t, OutcomeRetry, d.Outcome)
	assert.True(t, d.StripThinking)
}

func TestHandleUpstreamError_400UnrelatedThrows(t *testing.T) {
	d := HandleUpstreamError(Input{
		Status:  400,
		Body:    "missing required field 'messages'",
		Markers: DefaultErrorMarkers(),
	})
	assert.Equal(t, OutcomeThrow, d.Outcome)
}

func TestHandleUpstreamError_5xxRetriesWithFixedDelay(t *testing.T) {
	d := HandleUpstreamError(Input{Status: 503})
	assert.Equal(t, OutcomeRetry, d.Outcome)
	assert.Equal(t, 2*time.Second, d.Delay)
}

func TestHandleUpstreamError_UnknownStatusThrows(t *testing.T) {
	d := HandleUpstreamError(Input{Status: 418})
	assert.Equal(t, OutcomeThrow, d.Outcome)
}

func TestParseRetryAfterMs_HeaderTakesPriority(t *testing.T) {
	router := &fakeRouter{resolveProvider: "anthropic", resolveModel: "claude-opus-4"}
	d := HandleUpstreamError(Input{
		Status:   429,
		Headers:  map[string]string{"Retry-After": "5"},
		Body:     `{"error":{"retryDelay":"12s"}}`,
		Provider: "anthropic",
		Model:    "claude-opus-4",
		Router:   router,
		Accounts: &fakeAccounts{},
	})
	assert.Equal(t, OutcomeRetry, d.Outcome)
	assert.Equal(t, 1*time.Second, d.Delay)
	assert.Equal(t, int64(5000), router.lastRetryAfter)
}

func TestParseRetryAfterMs_FallsBackToBodyRetryDelay(t *testing.T) {
	router := &fakeRouter{resolveProvider: "gemini", resolveModel: "gemini-2.5-pro"}
	d := HandleUpstreamError(Input{
		Status:   429,
		Body:     `{"error":{"retryDelay":"12s"}}`,
		Provider: "gemini",
		Model:    "gemini-2.5-pro",
		Router:   router,
		Accounts: &fakeAccounts{},
	})
	assert.Equal(t, OutcomeRetry, d.Outcome)
	assert.Equal(t, int64(12000), router.lastRetryAfter)
}
