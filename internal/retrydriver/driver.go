package retrydriver

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MaxAttempts bounds the retry loop; exceeding it returns a synthetic
// failure rather than looping forever against a consistently failing
// upstream.
const MaxAttempts = 8

// FinalOutcome classifies how the loop ended, for the Dispatcher to render
// an HTTP response.
type FinalOutcome string

const (
	FinalSuccess     FinalOutcome = "success"
	FinalAllCooldown FinalOutcome = "all-cooldown"
	FinalThrow       FinalOutcome = "throw"
	FinalExhausted   FinalOutcome = "exhausted"
)

// Result is what Run returns to the Dispatcher once the loop ends.
type Result struct {
	Outcome      FinalOutcome
	ThrowMessage string
	Attempts     int
}

// AttemptResult is what one DoAttempt invocation reports back to the loop.
// For a 2xx response, the caller is expected to have already streamed the
// body to the client inside DoAttempt (StreamTransform runs there); Run
// only needs to know whether to keep retrying.
type AttemptResult struct {
	StatusCode   int
	Headers      map[string]string
	ErrorBody    string
	NetworkError error
}

// Hooks are the provider-specific per-attempt steps the Dispatcher
// supplies; Driver itself only implements the retry/switch/
// cooldown state machine around them.
type Hooks struct {
	// DoAttempt builds headers, resolves accounts/projectId, runs
	// RequestTransform + fixups + ThinkingRecoveryEngine, and fetches the
	// upstream for the current State.
	DoAttempt func(ctx context.Context, st *State) AttemptResult

	// RotateAntigravityEndpoint advances st.AntigravityEndpointIndex and
	// reports the new index plus the total fallback count, for step 10's
	// network-exception handling.
	RotateAntigravityEndpoint func(st *State) (index, total int)
}

// MetricsRecorder is the narrow metrics surface Driver emits to;
// *metrics.Collector satisfies it. Nil disables instrumentation.
type MetricsRecorder interface {
	RecordCooldownTrip(ctx context.Context, provider, model string)
	RecordAccountRotation(provider string)
	RecordRetryAttempt(provider, model string)
	RecordRetryOutcome(outcome string)
}

// Driver runs the streaming attempt loop.
type Driver struct {
	Router   RouterView
	Accounts AccountView
	Markers  ErrorMarkers
	Logger   *zap.Logger
	Metrics  MetricsRecorder

	AccountsPerProvider func(provider string) int
}

// New constructs a Driver with the default error markers.
func New(r RouterView, a AccountView, accountsPerProvider func(string) int, logger *zap.Logger) *Driver {
	return &Driver{
		Router:              r,
		Accounts:            a,
		Markers:             DefaultErrorMarkers(),
		Logger:              logger,
		AccountsPerProvider: accountsPerProvider,
	}
}

// Run drives st through attempts until success, a terminal failure, or
// MaxAttempts is exceeded.
func (d *Driver) Run(ctx context.Context, st *State, hooks Hooks) Result {
	if st.PreviousProvider == "" && st.PreviousModel == "" {
		st.PreviousProvider, st.PreviousModel = st.CurrentProvider, st.CurrentModel
	}
	for {
		st.Attempt++
		if st.Attempt > MaxAttempts {
			d.recordOutcome(FinalExhausted)
			return Result{Outcome: FinalExhausted, ThrowMessage: "Unexpected end of retry loop", Attempts: st.Attempt}
		}

		if d.Metrics != nil {
			d.Metrics.RecordRetryAttempt(st.CurrentProvider, st.CurrentModel)
		}

		attempt := hooks.DoAttempt(ctx, st)
		st.PreviousProvider, st.PreviousModel = st.CurrentProvider, st.CurrentModel

		if attempt.NetworkError != nil {
			d.handleNetworkError(ctx, st, hooks)
			continue
		}

		if attempt.StatusCode >= 200 && attempt.StatusCode < 300 {
			d.recordOutcome(FinalSuccess)
			return Result{Outcome: FinalSuccess, Attempts: st.Attempt}
		}

		if attempt.StatusCode == 429 && d.Metrics != nil {
			d.Metrics.RecordCooldownTrip(ctx, st.CurrentProvider, st.CurrentModel)
		}

		decision := HandleUpstreamError(Input{
			Status:              attempt.StatusCode,
			Headers:             attempt.Headers,
			Body:                attempt.ErrorBody,
			Provider:            st.CurrentProvider,
			Model:               st.CurrentModel,
			OriginalModel:       st.OriginalModel,
			AccountIndex:        st.AccountIndex,
			AccountsPerProvider: d.providerAccountCount(st.CurrentProvider),
			CurrentProjectID:    st.OverrideProjectID,
			Router:              d.Router,
			Accounts:            d.Accounts,
			Markers:             d.Markers,
		})

		switch decision.Outcome {
		case OutcomeRetry:
			if decision.ProjectIDChanged {
				st.OverrideProjectID = decision.NewProjectID
			}
			if decision.AccountIndexChanged {
				st.AccountIndex = decision.NewAccountIndex
				if d.Metrics != nil {
					d.Metrics.RecordAccountRotation(st.CurrentProvider)
				}
			}
			st.ForceStripThinking = decision.StripThinking
			if d.Logger != nil {
				d.Logger.Info("retrying upstream attempt",
					zap.Int("attempt", st.Attempt),
					zap.String("provider", st.CurrentProvider),
					zap.String("model", st.CurrentModel),
					zap.Duration("delay", decision.Delay),
					zap.Bool("strip_thinking", decision.StripThinking),
					zap.Int("account_index", st.AccountIndex),
				)
			}
			sleep(ctx, decision.Delay)
			continue

		case OutcomeSwitchModel:
			if d.Logger != nil {
				d.Logger.Info("switching model after upstream error",
					zap.String("from_provider", st.CurrentProvider),
					zap.String("from_model", st.CurrentModel),
					zap.String("to_provider", decision.NewProvider),
					zap.String("to_model", decision.NewModel),
				)
			}
			st.ResetForSwitch(decision.NewProvider, decision.NewModel)
			continue

		case OutcomeAllCooldown:
			d.recordOutcome(FinalAllCooldown)
			return Result{Outcome: FinalAllCooldown, Attempts: st.Attempt}

		default: // OutcomeThrow
			d.recordOutcome(FinalThrow)
			return Result{Outcome: FinalThrow, ThrowMessage: decision.ThrowMessage, Attempts: st.Attempt}
		}
	}
}

func (d *Driver) providerAccountCount(provider string) int {
	if d.AccountsPerProvider == nil {
		return 0
	}
	return d.AccountsPerProvider(provider)
}

// recordOutcome reports the retry loop's terminal classification, using
// RecordRetryOutcome's "surrender" label for an exhausted attempt budget.
func (d *Driver) recordOutcome(outcome FinalOutcome) {
	if d.Metrics == nil {
		return
	}
	label := string(outcome)
	if outcome == FinalExhausted {
		label = "surrender"
	}
	d.Metrics.RecordRetryOutcome(label)
}

func (d *Driver) handleNetworkError(ctx context.Context, st *State, hooks Hooks) {
	if st.CurrentProvider == "antigravity" && hooks.RotateAntigravityEndpoint != nil {
		idx, total := hooks.RotateAntigravityEndpoint(st)
		if idx < total {
			sleep(ctx, 200*time.Millisecond)
			return
		}
		sleep(ctx, time.Second)
		return
	}
	sleep(ctx, time.Second)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
