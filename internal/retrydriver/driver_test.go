package retrydriver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(router RouterView, accounts AccountView) *Driver {
	return New(router, accounts, func(string) int { return 1 }, nil)
}

type fakeMetrics struct {
	cooldownTrips    int
	accountRotations []string
	retryAttempts    int
	retryOutcomes    []string
}

func (f *fakeMetrics) RecordCooldownTrip(ctx context.Context, provider, model string) {
	f.cooldownTrips++
}

func (f *fakeMetrics) RecordAccountRotation(provider string) {
	f.accountRotations = append(f.accountRotations, provider)
}

func (f *fakeMetrics) RecordRetryAttempt(provider, model string) {
	f.retryAttempts++
}

func (f *fakeMetrics) RecordRetryOutcome(outcome string) {
	f.retryOutcomes = append(f.retryOutcomes, outcome)
}

func TestDriver_Run_RecordsMetricsAcrossRetryAndRotation(t *testing.T) {
	accounts := &fakeAccounts{nextAvailable: 1}
	d := newTestDriver(&fakeRouter{}, accounts)
	metrics := &fakeMetrics{}
	d.Metrics = metrics
	st := &State{CurrentProvider: "anthropic", CurrentModel: "claude-opus-4", OriginalModel: "claude-opus-4"}

	calls := 0
	result := d.Run(context.Background(), st, Hooks{
		DoAttempt: func(ctx context.Context, st *State) AttemptResult {
			calls++
			if calls == 1 {
				return AttemptResult{StatusCode: 401}
			}
			return AttemptResult{StatusCode: 200}
		},
	})

	assert.Equal(t, FinalSuccess, result.Outcome)
	assert.Equal(t, 2, metrics.retryAttempts)
	assert.Equal(t, []string{"anthropic"}, metrics.accountRotations)
	assert.Equal(t, []string{"success"}, metrics.retryOutcomes)
}

func TestDriver_Run_RecordsCooldownTripOn429(t *testing.T) {
	router := &fakeRouter{resolveProvider: "anthropic", resolveModel: "claude-opus-4"}
	accounts := &fakeAccounts{allRateLimited: true}
	d := newTestDriver(router, accounts)
	metrics := &fakeMetrics{}
	d.Metrics = metrics
	st := &State{CurrentProvider: "anthropic", CurrentModel: "claude-opus-4", OriginalModel: "smart"}

	result := d.Run(context.Background(), st, Hooks{
		DoAttempt: func(ctx context.Context, st *State) AttemptResult {
			return AttemptResult{StatusCode: 429}
		},
	})

	assert.Equal(t, FinalAllCooldown, result.Outcome)
	assert.Equal(t, 1, metrics.cooldownTrips)
	assert.Equal(t, []string{"all-cooldown"}, metrics.retryOutcomes)
}

func TestDriver_Run_SucceedsOnFirst2xx(t *testing.T) {
	d := newTestDriver(&fakeRouter{}, &fakeAccounts{})
	st := &State{CurrentProvider: "anthropic", CurrentModel: "claude-opus-4", OriginalModel: "smart"}

	calls := 0
	result := d.Run(context.Background(), st, Hooks{
		DoAttempt: func(ctx context.Context, st *State) AttemptResult {
			calls++
			return AttemptResult{StatusCode: 200}
		},
	})

	assert.Equal(t, FinalSuccess, result.Outcome)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, st.Attempt)
}

func TestDriver_Run_RetriesThenSucceeds(t *testing.T) {
	d := newTestDriver(&fakeRouter{resolveProvider: "anthropic", resolveModel: "claude-opus-4"}, &fakeAccounts{})
	st := &State{CurrentProvider: "anthropic", CurrentModel: "claude-opus-4", OriginalModel: "smart"}

	calls := 0
	result := d.Run(context.Background(), st, Hooks{
		DoAttempt: func(ctx context.Context, st *State) AttemptResult {
			calls++
			if calls == 1 {
				return AttemptResult{StatusCode: 503}
			}
			return AttemptResult{StatusCode: 200}
		},
	})

	assert.Equal(t, FinalSuccess, result.Outcome)
	assert.Equal(t, 2, calls)
}

func TestDriver_Run_SwitchModelResetsStateAndContinues(t *testing.T) {
	router := &fakeRouter{resolveProvider: "openai", resolveModel: "gpt-4o"}
	d := newTestDriver(router, &fakeAccounts{})
	st := &State{CurrentProvider: "anthropic", CurrentModel: "claude-opus-4", OriginalModel: "smart", AccountIndex: 2}

	calls := 0
	result := d.Run(context.Background(), st, Hooks{
		DoAttempt: func(ctx context.Context, st *State) AttemptResult {
			calls++
			if st.CurrentProvider == "anthropic" {
				return AttemptResult{StatusCode: 429}
			}
			return AttemptResult{StatusCode: 200}
		},
	})

	require.Equal(t, FinalSuccess, result.Outcome)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "openai", st.CurrentProvider)
	assert.Equal(t, "gpt-4o", st.CurrentModel)
}

func TestDriver_Run_401RotatesAccountIndexBeforeRetrying(t *testing.T) {
	accounts := &fakeAccounts{nextAvailable: 1}
	d := newTestDriver(&fakeRouter{}, accounts)
	st := &State{CurrentProvider: "anthropic", CurrentModel: "claude-opus-4", OriginalModel: "claude-opus-4"}

	calls := 0
	result := d.Run(context.Background(), st, Hooks{
		DoAttempt: func(ctx context.Context, st *State) AttemptResult {
			calls++
			if calls == 1 {
				assert.Equal(t, 0, st.AccountIndex)
				return AttemptResult{StatusCode: 401}
			}
			assert.Equal(t, 1, st.AccountIndex)
			return AttemptResult{StatusCode: 200}
		},
	})

	assert.Equal(t, FinalSuccess, result.Outcome)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, st.AccountIndex)
}

func TestDriver_Run_AllCooldownStopsImmediately(t *testing.T) {
	router := &fakeRouter{resolveProvider: "anthropic", resolveModel: "claude-opus-4"}
	accounts := &fakeAccounts{allRateLimited: true}
	d := newTestDriver(router, accounts)
	st := &State{CurrentProvider: "anthropic", CurrentModel: "claude-opus-4", OriginalModel: "smart"}

	calls := 0
	result := d.Run(context.Background(), st, Hooks{
		DoAttempt: func(ctx context.Context, st *State) AttemptResult {
			calls++
			return AttemptResult{StatusCode: 429}
		},
	})

	assert.Equal(t, FinalAllCooldown, result.Outcome)
	assert.Equal(t, 1, calls)
}

func TestDriver_Run_ThrowStopsImmediately(t *testing.T) {
	d := newTestDriver(&fakeRouter{}, &fakeAccounts{})
	st := &State{CurrentProvider: "anthropic", CurrentModel: "claude-opus-4", OriginalModel: "smart"}

	result := d.Run(context.Background(), st, Hooks{
		DoAttempt: func(ctx context.Context, st *State) AttemptResult {
			return AttemptResult{StatusCode: 400, ErrorBody: "missing field"}
		},
	})

	assert.Equal(t, FinalThrow, result.Outcome)
	assert.Contains(t, result.ThrowMessage, "400")
}

func TestDriver_Run_NetworkErrorRetriesUpToMaxAttempts(t *testing.T) {
	d := newTestDriver(&fakeRouter{}, &fakeAccounts{})
	st := &State{CurrentProvider: "openai", CurrentModel: "gpt-4o", OriginalModel: "gpt-4o"}

	// Pre-cancel so Driver.Run's inter-attempt sleeps return immediately;
	// DoAttempt itself still runs once per attempt regardless of ctx state.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	result := d.Run(ctx, st, Hooks{
		DoAttempt: func(ctx context.Context, st *State) AttemptResult {
			calls++
			return AttemptResult{NetworkError: assertNetworkErr}
		},
	})

	assert.Equal(t, FinalExhausted, result.Outcome)
	assert.Equal(t, MaxAttempts, calls)
}

var assertNetworkErr = errNetwork("connection reset")

type errNetwork string

func (e errNetwork) Error() string { return string(e) }
