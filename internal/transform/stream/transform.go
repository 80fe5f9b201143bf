package stream

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/soilSpoon/llmux/internal/domain/dialect"
	"github.com/soilSpoon/llmux/internal/domain/signature"
	"github.com/soilSpoon/llmux/internal/domain/signature/storage"
	"github.com/soilSpoon/llmux/internal/domain/thinking"
	"github.com/soilSpoon/llmux/internal/domain/tokenusage"
	"go.uber.org/zap"
)

// wireFamily collapses the six request/response dialects down to the three
// SSE shapes actually on the wire: antigravity responses are Gemini
// generateContent chunks under their wrapper, and openai-web/opencode-zen
// both speak OpenAI Chat Completions framing.
func wireFamily(d dialect.Dialect) dialect.Dialect {
	switch d {
	case dialect.DialectAntigravity:
		return dialect.DialectGemini
	case dialect.DialectOpenAIWeb, dialect.DialectOpencodeZen:
		return dialect.DialectOpenAI
	default:
		return d
	}
}

// SignatureContext carries the pieces StreamTransform needs to persist
// thought signatures as they arrive, mirroring ThinkingEngine.CacheSignatureFromChunk's
// caller contract.
type SignatureContext struct {
	SessionKey string
	Family     string
	ProjectID  string // non-empty only for antigravity/anthropic sources
	Provider   string
	Endpoint   string
	Account    string

	Engine *thinking.Engine
	Store  *signature.Store
}

// Options configures one StreamTransform invocation.
type Options struct {
	Source      dialect.Dialect
	Target      dialect.Dialect
	Model       string // used to pick a tiktoken encoding when usage is estimated
	IdleTimeout time.Duration
	Signature   *SignatureContext
	Logger      *zap.Logger
}

// Result reports what StreamTransform observed, for RetryDriver bookkeeping
// and metrics (cooldown/account handling happens one layer up, based on the
// HTTP status, not on stream contents).
type Result struct {
	SawToolUse       bool
	BytesWritten     int64
	FramesWritten    int
	PromptTokens     int
	CompletionTokens int
	UsageEstimated   bool // true when the provider omitted a usage event
}

// Run reads SSE frames from r, re-transforms them from Source to Target,
// and writes the wire bytes to w. Parse errors on an individual frame pass
// the original frame through unchanged rather than aborting the stream.
func Run(ctx context.Context, r io.Reader, w io.Writer, opts Options) (Result, error) {
	reader := NewFrameReader(r, opts.IdleTimeout)
	passthrough := wireFamily(opts.Source) == wireFamily(opts.Target)

	var emitter interface{ Emit(UnifiedEvent) []Frame }
	switch opts.Target {
	case dialect.DialectAnthropic:
		emitter = NewAnthropicEmitter()
	case dialect.DialectGemini:
		emitter = NewGeminiEmitter()
	default:
		emitter = NewOpenAIEmitter()
	}

	anthropicState := NewAnthropicParseState()
	openAIToolSeen := map[int]bool{}
	textBuffer := map[int]string{}
	seenSignatures := map[string]bool{}

	var result Result
	var completionText strings.Builder
	sawUsage := false

	finalizeUsage := func() {
		if sawUsage {
			return
		}
		est := tokenusage.ForModel(opts.Model)
		result.CompletionTokens = est.Count(completionText.String())
		result.UsageEstimated = true
	}

	for {
		frame, err := reader.Next(ctx)
		if err == io.EOF {
			finalizeUsage()
			return result, nil
		}
		if err != nil {
			return result, err
		}

		if frame.Done() {
			n, werr := w.Write(Encode(frame))
			result.BytesWritten += int64(n)
			result.FramesWritten++
			finalizeUsage()
			return result, werr
		}

		var events []UnifiedEvent
		var parseErr error
		switch wireFamily(opts.Source) {
		case dialect.DialectAnthropic:
			events, parseErr = ParseAnthropicFrame(frame, anthropicState)
		case dialect.DialectGemini:
			events, parseErr = ParseGeminiFrame(frame)
		default:
			events, parseErr = ParseOpenAIFrame(frame, openAIToolSeen)
		}

		if parseErr != nil {
			if opts.Logger != nil {
				opts.Logger.Warn("stream frame parse error, passing through raw", zap.Error(parseErr))
			}
			n, werr := w.Write(Encode(frame))
			result.BytesWritten += int64(n)
			result.FramesWritten++
			if werr != nil {
				return result, werr
			}
			continue
		}

		for _, evt := range events {
			switch evt.Kind {
			case EventToolUseStop:
				result.SawToolUse = true
			case EventTextDelta:
				completionText.WriteString(evt.Text)
			case EventUsage:
				sawUsage = true
				result.PromptTokens = evt.PromptTokens
				result.CompletionTokens = evt.CompletionTokens
			}
			applySignatureSideEffects(opts.Signature, textBuffer, seenSignatures, evt)
		}

		if passthrough {
			frame = patchPassthroughStopReason(frame, events)
			n, werr := w.Write(Encode(frame))
			result.BytesWritten += int64(n)
			result.FramesWritten++
			if werr != nil {
				return result, werr
			}
			continue
		}

		for _, evt := range events {
			for _, out := range emitter.Emit(evt) {
				n, werr := w.Write(Encode(out))
				result.BytesWritten += int64(n)
				result.FramesWritten++
				if werr != nil {
					return result, werr
				}
			}
		}
	}
}

// patchPassthroughStopReason rewrites an Anthropic message_delta frame
// carrying stop_reason "end_turn" to "tool_use" when the message produced a
// tool_use block. The conversion path gets this patch from the emitter;
// passthrough forwards raw frames, so the same rewrite must happen here.
func patchPassthroughStopReason(f Frame, events []UnifiedEvent) Frame {
	needsPatch := false
	for _, evt := range events {
		if evt.Kind == EventStopReason && evt.HadToolUse && evt.StopReason == "end_turn" {
			needsPatch = true
			break
		}
	}
	if !needsPatch {
		return f
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(f.Data), &data); err != nil {
		return f
	}
	delta, ok := data["delta"].(map[string]interface{})
	if !ok {
		return f
	}
	delta["stop_reason"] = "tool_use"
	b, err := json.Marshal(data)
	if err != nil {
		return f
	}
	f.Data = string(b)
	return f
}

func applySignatureSideEffects(sigCtx *SignatureContext, textBuffer map[int]string, seen map[string]bool, evt UnifiedEvent) {
	if sigCtx == nil || evt.Kind != EventThinkingDelta {
		return
	}
	if sigCtx.Engine != nil {
		sigCtx.Engine.CacheSignatureFromChunk(sigCtx.SessionKey, sigCtx.Family, textBuffer, evt.Index, evt.ThinkingText, evt.Signature)
	}
	if evt.Signature == "" || sigCtx.ProjectID == "" || sigCtx.Store == nil || seen[evt.Signature] {
		return
	}
	seen[evt.Signature] = true
	_ = sigCtx.Store.SaveSignature(storage.Record{
		Signature: evt.Signature,
		ProjectID: sigCtx.ProjectID,
		Provider:  sigCtx.Provider,
		Endpoint:  sigCtx.Endpoint,
		Account:   sigCtx.Account,
		CreatedAt: time.Now(),
	})
}
