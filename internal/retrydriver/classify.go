package retrydriver

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Outcome is handleUpstreamError's verdict for one non-2xx response.
type Outcome string

const (
	OutcomeRetry       Outcome = "retry"
	OutcomeSwitchModel Outcome = "switch-model"
	OutcomeAllCooldown Outcome = "all-cooldown"
	OutcomeThrow       Outcome = "throw"
)

// ErrorMarkers holds the response-body substrings that distinguish the
// "retry in place" cases of 404/400 from their "give up" counterparts.
// These are exact strings providers are observed to return, kept apart
// from the classifier in Driver.Markers. New fills that field with
// DefaultErrorMarkers; no configuration setting loads or overrides the
// markers, so changing them is a code change.
type ErrorMarkers struct {
	AntigravityProjectNotFound []string
	CorruptedThoughtSignature  []string
}

// DefaultErrorMarkers are the markers observed from Anthropic/Gemini/
// antigravity error bodies as of this gateway's initial release.
func DefaultErrorMarkers() ErrorMarkers {
	return ErrorMarkers{
		AntigravityProjectNotFound: []string{"project not found", "PROJECT_NOT_FOUND", "requested project"},
		CorruptedThoughtSignature:  []string{"corrupted", "invalid signature", "thought signature", "Unable to submit request"},
	}
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// Decision is the resolved action for one attempt's response.
type Decision struct {
	Outcome          Outcome
	Delay            time.Duration
	NewModel         string
	NewProvider      string
	NewProjectID     string
	ProjectIDChanged bool
	StripThinking    bool
	ThrowMessage     string

	// NewAccountIndex is the account index the next attempt should use,
	// resolved via AccountRotationManager.GetNextAvailable. Only meaningful
	// when AccountIndexChanged is true; otherwise the caller keeps its
	// current index.
	NewAccountIndex     int
	AccountIndexChanged bool
}

// Input bundles everything handleUpstreamError needs to reach a Decision.
// Router and Accounts are the narrow interfaces this package depends on,
// satisfied by *router.Router and *account.Manager respectively.
type Input struct {
	Status        int
	Headers       map[string]string
	Body          string
	Provider      string
	Model         string
	OriginalModel string

	AccountIndex        int
	AccountsPerProvider int
	CurrentProjectID    string

	Router   RouterView
	Accounts AccountView
	Markers  ErrorMarkers
}

// RouterView is the subset of *router.Router handleUpstreamError consults.
type RouterView interface {
	ResolveModel(requestedModel string) (provider, model string)
	HandleRateLimit(provider, model string, retryAfterMs int64) time.Duration
}

// AccountView is the subset of *account.Manager handleUpstreamError consults.
type AccountView interface {
	MarkRateLimited(provider string, index int, durationMs int64)
	AreAllRateLimited(provider string, n int) bool
	GetNextAvailable(provider string, n int) int
}

const antigravityDefaultProjectID = "ANTIGRAVITY_DEFAULT_PROJECT_ID"

// HandleUpstreamError maps one non-2xx upstream response to the next
// action: retry in place, switch models, declare every option cooled
// down, or give up.
func HandleUpstreamError(in Input) Decision {
	switch {
	case in.Status == 429:
		return handle429(in)
	case in.Status == 401 || in.Status == 403:
		return handle401403(in)
	case in.Status == 404 && in.Provider == "antigravity":
		return handle404Antigravity(in)
	case in.Status == 400:
		return handle400(in)
	case in.Status >= 500:
		return Decision{Outcome: OutcomeRetry, Delay: 2 * time.Second}
	default:
		return Decision{Outcome: OutcomeThrow, ThrowMessage: "upstream returned status " + strconv.Itoa(in.Status)}
	}
}

func handle429(in Input) Decision {
	retryAfterMs := parseRetryAfterMs(in.Headers, in.Body)

	in.Router.HandleRateLimit(in.Provider, in.Model, retryAfterMs)
	in.Accounts.MarkRateLimited(in.Provider, in.AccountIndex, retryAfterMs)

	newProvider, newModel := in.Router.ResolveModel(in.OriginalModel)
	if newProvider != in.Provider || newModel != in.Model {
		return Decision{Outcome: OutcomeSwitchModel, NewProvider: newProvider, NewModel: newModel}
	}

	if in.AccountsPerProvider > 0 && in.Accounts.AreAllRateLimited(in.Provider, in.AccountsPerProvider) {
		return Decision{Outcome: OutcomeAllCooldown}
	}

	next := in.Accounts.GetNextAvailable(in.Provider, in.AccountsPerProvider)
	return Decision{
		Outcome:             OutcomeRetry,
		Delay:               1 * time.Second,
		NewAccountIndex:     next,
		AccountIndexChanged: next != in.AccountIndex,
	}
}

func handle401403(in Input) Decision {
	next := in.Accounts.GetNextAvailable(in.Provider, in.AccountsPerProvider)
	if next == in.AccountIndex {
		return Decision{Outcome: OutcomeThrow, ThrowMessage: "no alternate credentials available after auth failure"}
	}
	return Decision{
		Outcome:             OutcomeRetry,
		Delay:               0,
		NewAccountIndex:     next,
		AccountIndexChanged: true,
	}
}

func handle404Antigravity(in Input) Decision {
	if !containsAny(in.Body, in.Markers.AntigravityProjectNotFound) {
		return Decision{Outcome: OutcomeThrow, ThrowMessage: "antigravity 404: " + in.Body}
	}
	newProjectID := antigravityDefaultProjectID
	if in.CurrentProjectID == antigravityDefaultProjectID {
		newProjectID = ""
	}
	return Decision{Outcome: OutcomeRetry, NewProjectID: newProjectID, ProjectIDChanged: true}
}

func handle400(in Input) Decision {
	if containsAny(in.Body, in.Markers.CorruptedThoughtSignature) {
		return Decision{Outcome: OutcomeRetry, StripThinking: true}
	}
	return Decision{Outcome: OutcomeThrow, ThrowMessage: "upstream 400: " + in.Body}
}

// parseRetryAfterMs tries the Retry-After header first, then a handful of
// body JSON shapes providers use for their own retry hint, defaulting to
// 30s.
func parseRetryAfterMs(headers map[string]string, body string) int64 {
	if v, ok := headers["Retry-After"]; ok {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return int64(secs) * 1000
		}
	}

	var parsed struct {
		Error struct {
			RetryDelay string `json:"retryDelay"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && parsed.Error.RetryDelay != "" {
		s := strings.TrimSuffix(parsed.Error.RetryDelay, "s")
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(secs * 1000)
		}
	}

	return 30_000
}
