// Package retrydriver implements the streaming attempt loop (C10): the
// state machine that decides, after each upstream response, whether to
// retry, switch models/providers, declare every option cooled down, or give
// up. The same small-state-machine shape as cooldown.Manager and
// router.circuitBreaker, widened from a binary open/closed split into the
// full per-status decision table this gateway needs.
package retrydriver

// State is the mutable per-request retry state threaded through one
// streaming attempt loop. It is reset in place (not recreated) on
// switch-model.
type State struct {
	Attempt                  int
	AccountIndex             int
	AntigravityEndpointIndex int
	OverrideProjectID        string

	CurrentProvider  string
	CurrentModel     string
	OriginalModel    string
	EffectiveTarget  string // not set by the driver; the "changed since previous attempt" check reads PreviousProvider/PreviousModel
	PreviousProvider string
	PreviousModel    string

	// ForceStripThinking is set for one attempt when handleUpstreamError
	// detected a corrupted-thought-signature 400 and cleared by DoAttempt
	// once it has acted on it.
	ForceStripThinking bool
}

// ModelOrProviderChanged reports whether the target differs from the
// previous attempt's, which forces an unconditional signature strip:
// signatures are bound to the model that emitted them.
func (s *State) ModelOrProviderChanged() bool {
	return s.CurrentProvider != s.PreviousProvider || s.CurrentModel != s.PreviousModel
}

// AdvanceAttempt tracks the model/provider this attempt is about to use as
// "previous" for the next iteration's changed-check, then increments the
// attempt counter.
func (s *State) AdvanceAttempt() {
	s.PreviousProvider = s.CurrentProvider
	s.PreviousModel = s.CurrentModel
	s.Attempt++
}

// ResetForSwitch clears the per-attempt indices a model/provider switch
// invalidates.
func (s *State) ResetForSwitch(newProvider, newModel string) {
	s.CurrentProvider = newProvider
	s.CurrentModel = newModel
	s.AccountIndex = 0
	s.AntigravityEndpointIndex = 0
	s.OverrideProjectID = ""
	s.Attempt = 0
}
