package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/soilSpoon/llmux/internal/dialect/anthropic"
	"github.com/soilSpoon/llmux/internal/dialect/antigravity"
	"github.com/soilSpoon/llmux/internal/dialect/gemini"
	"github.com/soilSpoon/llmux/internal/dialect/openai"
	"github.com/soilSpoon/llmux/internal/dialect/openaiweb"
	"github.com/soilSpoon/llmux/internal/domain/dialect"
	"github.com/soilSpoon/llmux/internal/domain/modelmap"
	"github.com/soilSpoon/llmux/internal/domain/router"
	"github.com/soilSpoon/llmux/internal/domain/signature"
	"github.com/soilSpoon/llmux/internal/domain/thinking"
	"github.com/soilSpoon/llmux/internal/infrastructure/metrics"
	"github.com/soilSpoon/llmux/internal/infrastructure/upstream"
	"github.com/soilSpoon/llmux/internal/retrydriver"
	transformrequest "github.com/soilSpoon/llmux/internal/transform/request"
	transformstream "github.com/soilSpoon/llmux/internal/transform/stream"
	"github.com/soilSpoon/llmux/pkg/safego"
)

// CredentialProvider resolves provider-specific auth headers and base URLs.
// Credential storage and OAuth refresh live outside the dispatch core and
// are treated as opaque, so only the narrow interface the dispatch loop
// needs is declared here.
type CredentialProvider interface {
	Headers(ctx context.Context, provider string, accountIndex int) (http.Header, error)
	BaseURL(provider string) string
}

// AliasMapping is one user-configured inline alias entry consulted before
// Router's own fallback-aware resolution, letting a client-supplied model
// name carry a "thinking:" prefix or ":provider" suffix.
type AliasMapping = modelmap.Mapping

// Dispatcher wires model mapping, routing, the retry loop and the stream
// transform into one HTTP entrypoint.
type Dispatcher struct {
	Router        *router.Router
	RetryDriver   *retrydriver.Driver
	Thinking      *thinking.Engine
	SigCache      *signature.Cache
	SigStore      *signature.Store
	ServerSession string

	AliasMappings []AliasMapping
	Credentials   CredentialProvider
	Upstream      *upstream.Client
	Metrics       *metrics.Collector
	Logger        *zap.Logger

	AccountsPerProvider func(provider string) int
	UpstreamTimeout     time.Duration

	// AntigravityFallbacks is the fixed base-URL list antigravity rotates
	// through on network errors, and AntigravityStreamPath the path
	// appended to whichever entry is selected.
	AntigravityFallbacks  []string
	AntigravityStreamPath string
}

// attemptContext is the per-request data threaded through one RetryDriver
// run's DoAttempt closure.
type attemptContext struct {
	sourceDialect dialect.Dialect
	conversation  dialect.Conversation
	rawBody       map[string]interface{}
	thinkingFlag  *bool
	metadata      map[string]interface{}
	sessionKey    string
	family        string
	w             http.ResponseWriter
}

// Handle serves one inbound request end to end: extract model, resolve
// target, and run the RetryDriver loop (streaming) or a single-shot
// passthrough (non-streaming).
func (d *Dispatcher) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", "invalid_request_error", "")
		return
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON", "invalid_request_error", "")
		return
	}

	requestedModel, _ := ExtractModel(normalizeModelPath(r.URL.Path), body)
	if requestedModel == "" {
		writeError(w, http.StatusBadRequest, "unable to determine requested model", "invalid_request_error", "")
		return
	}

	alias := modelmap.Apply(requestedModel, d.AliasMappings)
	canonicalModel := alias.Model

	target := d.Router.ResolveModel(canonicalModel)
	if alias.Provider != "" {
		target.Provider = alias.Provider
	}
	if target.Provider == "" {
		writeError(w, http.StatusServiceUnavailable, "no provider available for requested model", "service_unavailable", "")
		return
	}

	sourceDialect := DetectSourceDialect(r.URL.Path, body)
	conv := d.toConversation(sourceDialect, raw, body)

	convKey, _ := signature.ExtractConversationKey(body, conv.System, firstUserText(conv))
	sessionKey := signature.BuildSignatureSessionKey(d.ServerSession, target.Model, convKey, "default")
	family := modelmap.InferFamily(target.Model)

	st := &retrydriver.State{
		CurrentProvider: target.Provider,
		CurrentModel:    target.Model,
		OriginalModel:   canonicalModel,
	}

	actx := attemptContext{
		sourceDialect: sourceDialect,
		conversation:  conv,
		rawBody:       body,
		thinkingFlag:  boolPtr(alias.Thinking),
		sessionKey:    sessionKey,
		family:        family,
		w:             w,
	}

	stream := DetectStreamFlag(body)
	if !stream {
		d.handleNonStreaming(r.Context(), w, st, actx)
		d.observe(start, target, st, "non-streaming")
		return
	}

	result := d.RetryDriver.Run(r.Context(), st, retrydriver.Hooks{
		DoAttempt:                 d.attempt(actx),
		RotateAntigravityEndpoint: d.rotateAntigravityEndpoint,
	})

	switch result.Outcome {
	case retrydriver.FinalSuccess:
		// body already streamed inside DoAttempt
	case retrydriver.FinalAllCooldown:
		writeError(w, http.StatusTooManyRequests,
			"All available models and providers are currently rate-limited. Please try again later.",
			"rate_limit_error", "all_providers_cooldown")
	default:
		writeError(w, http.StatusInternalServerError, result.ThrowMessage, "internal_error", "")
	}

	d.observe(start, target, st, string(result.Outcome))
}

func (d *Dispatcher) observe(start time.Time, target router.Target, st *retrydriver.State, status string) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.RecordUpstreamRequest(target.Provider, target.Model, status, time.Since(start))
}

func (d *Dispatcher) toConversation(src dialect.Dialect, raw []byte, body map[string]interface{}) dialect.Conversation {
	var conv dialect.Conversation
	switch src {
	case dialect.DialectAnthropic:
		var req anthropic.Request
		_ = json.Unmarshal(raw, &req)
		conv = anthropic.ToConversation(req)
	case dialect.DialectGemini:
		var req gemini.Request
		_ = json.Unmarshal(raw, &req)
		conv = gemini.ToConversation(req)
	case dialect.DialectOpenAIWeb:
		var body openaiweb.Body
		_ = json.Unmarshal(raw, &body)
		conv = openaiweb.ToConversation(body)
	default:
		var req openai.Request
		_ = json.Unmarshal(raw, &req)
		conv = openai.ToConversation(req)
	}

	// opencode-zen's glm/kimi models round-trip their own prior reasoning as
	// inline <think> tags in assistant history rather than a dedicated
	// thinking field; normalize those back into thinking parts before the
	// rest of the pipeline sees them.
	return thinking.NormalizeInlineReasoning(conv)
}

// attempt builds the DoAttempt closure RetryDriver.Run invokes once per
// iteration: credentials, signature hygiene, body build, endpoint
// resolution and the upstream call for one provider target.
func (d *Dispatcher) attempt(actx attemptContext) func(ctx context.Context, st *retrydriver.State) retrydriver.AttemptResult {
	return func(ctx context.Context, st *retrydriver.State) retrydriver.AttemptResult {
		targetDialect := providerDialect(st.CurrentProvider)

		conv := actx.conversation
		if st.ModelOrProviderChanged() {
			conv = signature.StripAllSignatures(conv)
		}
		if st.OverrideProjectID != "" {
			strip, err := d.SigStore.ValidateAndStripSignatures(conv, st.OverrideProjectID)
			if err == nil {
				conv = strip.Conversation
			}
		}

		if thinking.ShouldCacheSignatures(actx.family, thinking.IsManagedThinkingModel(st.CurrentModel)) {
			preStrip := thinking.PreStripThinkingText(conv)
			stripped := thinking.Strip(conv)
			if st.ForceStripThinking {
				conv = stripped
				st.ForceStripThinking = false
			} else {
				conv = d.Thinking.Process(stripped, actx.sessionKey, actx.family, preStrip)
			}
		}

		outBody, err := d.buildProviderBody(st.CurrentProvider, targetDialect, st, actx, conv)
		if err != nil {
			return retrydriver.AttemptResult{NetworkError: err}
		}

		endpoint := transformrequest.ResolveStreamEndpoint(transformrequest.EndpointContext{
			Provider:              st.CurrentProvider,
			Model:                 st.CurrentModel,
			OpenAIWebEndpoint:     d.Credentials.BaseURL("openai-web"),
			AntigravityFallbacks:  d.antigravityFallbacks(),
			AntigravityIndex:      st.AntigravityEndpointIndex,
			AntigravityStreamPath: d.AntigravityStreamPath,
			DefaultEndpoint:       d.Credentials.BaseURL(st.CurrentProvider),
		})

		headers, err := d.Credentials.Headers(ctx, st.CurrentProvider, st.AccountIndex)
		if err != nil {
			return retrydriver.AttemptResult{NetworkError: err}
		}

		resp, err := d.Upstream.Do(ctx, upstream.Request{
			Method: http.MethodPost,
			URL:    endpoint,
			Header: headers,
			Body:   bytes.NewReader(outBody),
		})
		if err != nil {
			return retrydriver.AttemptResult{NetworkError: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errBody, _ := io.ReadAll(resp.Body)
			return retrydriver.AttemptResult{
				StatusCode: resp.StatusCode,
				Headers:    flattenHeader(resp.Header),
				ErrorBody:  string(errBody),
			}
		}

		d.Router.HandleSuccess(router.Target{Provider: st.CurrentProvider, Model: st.CurrentModel})

		actx.w.Header().Set("Content-Type", "text/event-stream")
		actx.w.Header().Set("Cache-Control", "no-cache")
		var streamOut io.Writer = actx.w
		if f, ok := actx.w.(http.Flusher); ok {
			streamOut = flushWriter{w: actx.w, f: f}
		}

		streamDone := make(chan struct{})
		safego.Go(d.Logger, "watch-cancellation", func() {
			d.Upstream.WatchCancellation(ctx, resp, streamDone)
		})

		streamResult, _ := transformstream.Run(ctx, resp.Body, streamOut, transformstream.Options{
			Source:      targetDialect,
			Target:      actx.sourceDialect,
			Model:       st.CurrentModel,
			IdleTimeout: 60 * time.Second,
			Signature: &transformstream.SignatureContext{
				SessionKey: actx.sessionKey,
				Family:     actx.family,
				ProjectID:  st.OverrideProjectID,
				Provider:   st.CurrentProvider,
				Endpoint:   endpoint,
				Engine:     d.Thinking,
				Store:      d.SigStore,
			},
			Logger: d.Logger,
		})
		close(streamDone)

		if d.Metrics != nil && streamResult.CompletionTokens > 0 {
			d.Metrics.RecordCompletionTokens(st.CurrentProvider, st.CurrentModel, streamResult.CompletionTokens, streamResult.UsageEstimated)
		}

		return retrydriver.AttemptResult{StatusCode: http.StatusOK}
	}
}

// buildProviderBody marshals conv into the wire body for provider/target,
// special-casing antigravity (wrapped in its outer envelope) and
// openai-web (Responses-style input items, not Chat Completions deltas)
// before falling back to the three direct dialect converters.
func (d *Dispatcher) buildProviderBody(provider string, target dialect.Dialect, st *retrydriver.State, actx attemptContext, conv dialect.Conversation) ([]byte, error) {
	switch provider {
	case "antigravity":
		env := antigravity.BuildEnvelope(gemini.Request{}, conv, st.OverrideProjectID, st.CurrentModel, actx.sessionKey)
		return json.Marshal(env)
	case "openai-web":
		effort := ""
		if actx.thinkingFlag != nil && *actx.thinkingFlag {
			effort = "high"
		}
		body := openaiweb.BuildCodexBody(st.CurrentModel, conv, openaiweb.Body{Stream: true}, effort)
		return json.Marshal(body)
	case "opencode-zen":
		return d.buildOpencodeZenBody(st, actx, conv)
	}

	switch target {
	case dialect.DialectAnthropic:
		base := anthropic.Request{Model: st.CurrentModel, MaxTokens: maxTokensOf(actx.rawBody), Stream: true}
		base.Temperature = floatField(actx.rawBody, "temperature")
		return json.Marshal(anthropic.FromConversation(base, conv))
	case dialect.DialectGemini:
		// the model rides in the URL for generateContent, not the body
		base := gemini.Request{}
		if mt := intField(actx.rawBody, "max_tokens"); mt > 0 {
			base.GenerationConfig = &gemini.GenerationConfig{MaxOutputTokens: mt}
		}
		return json.Marshal(gemini.FromConversation(base, conv))
	default:
		base := openai.Request{Model: st.CurrentModel, MaxTokens: intField(actx.rawBody, "max_tokens"), Stream: true}
		base.Temperature = floatField(actx.rawBody, "temperature")
		return json.Marshal(openai.FromConversation(base, conv))
	}
}

// defaultMaxTokens is applied when the client body carries no max_tokens;
// Anthropic's Messages API rejects a request without one.
const defaultMaxTokens = 4096

func maxTokensOf(body map[string]interface{}) int {
	if mt := intField(body, "max_tokens"); mt > 0 {
		return mt
	}
	return defaultMaxTokens
}

func intField(body map[string]interface{}, key string) int {
	if v, ok := body[key].(float64); ok {
		return int(v)
	}
	return 0
}

func floatField(body map[string]interface{}, key string) float64 {
	if v, ok := body[key].(float64); ok {
		return v
	}
	return 0
}

// buildOpencodeZenBody renders conv as an OpenAI Chat Completions body and
// runs it through OpencodeZenFixup: cache_control/reasoning_effort
// stripping, glm-*/kimi-* thinking-disable, and Anthropic-shaped tool
// rewriting, none of which the plain openai.FromConversation path applies.
func (d *Dispatcher) buildOpencodeZenBody(st *retrydriver.State, actx attemptContext, conv dialect.Conversation) ([]byte, error) {
	oaiReq := openai.FromConversation(openai.Request{Model: st.CurrentModel, MaxTokens: intField(actx.rawBody, "max_tokens"), Stream: true}, conv)
	raw, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, err
	}
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	thinkingEnabled := actx.thinkingFlag != nil && *actx.thinkingFlag
	fixed := transformrequest.OpencodeZenFixup(body, st.CurrentModel, thinkingEnabled)
	return json.Marshal(fixed)
}

func (d *Dispatcher) rotateAntigravityEndpoint(st *retrydriver.State) (int, int) {
	st.AntigravityEndpointIndex++
	return st.AntigravityEndpointIndex, len(d.antigravityFallbacks())
}

func (d *Dispatcher) antigravityFallbacks() []string {
	return d.AntigravityFallbacks
}

// handleNonStreaming is the single-shot path: one upstream attempt with no
// retry loop. The request body is always rebuilt from the conversation in
// the target provider's dialect; the upstream status and body are copied to
// the client unchanged, without conversion back to the source dialect.
func (d *Dispatcher) handleNonStreaming(ctx context.Context, w http.ResponseWriter, st *retrydriver.State, actx attemptContext) {
	targetDialect := providerDialect(st.CurrentProvider)
	outBody, err := d.buildProviderBody(st.CurrentProvider, targetDialect, st, actx, actx.conversation)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "internal_error", "")
		return
	}

	endpoint := d.Credentials.BaseURL(st.CurrentProvider)
	headers, err := d.Credentials.Headers(ctx, st.CurrentProvider, st.AccountIndex)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "internal_error", "")
		return
	}

	resp, err := d.Upstream.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Header: headers,
		Body:   bytes.NewReader(outBody),
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), "upstream_error", "")
		return
	}
	defer resp.Body.Close()

	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// flushWriter flushes after every write so each SSE frame leaves the server
// as it is produced instead of sitting in net/http's output buffer until the
// handler returns.
type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}

func writeError(w http.ResponseWriter, status int, message, errType, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
		},
	}
	if code != "" {
		payload["error"].(map[string]interface{})["code"] = code
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func providerDialect(provider string) dialect.Dialect {
	switch provider {
	case "anthropic":
		return dialect.DialectAnthropic
	case "antigravity":
		return dialect.DialectAntigravity
	case "gemini":
		return dialect.DialectGemini
	case "openai-web":
		return dialect.DialectOpenAIWeb
	case "opencode-zen":
		return dialect.DialectOpencodeZen
	default:
		return dialect.DialectOpenAI
	}
}

func firstUserText(conv dialect.Conversation) string {
	for _, m := range conv.Messages {
		if m.Role != dialect.RoleUser {
			continue
		}
		for _, p := range m.Parts {
			if p.Kind == dialect.PartText {
				return p.Text
			}
		}
	}
	return ""
}

func boolPtr(b bool) *bool { return &b }
