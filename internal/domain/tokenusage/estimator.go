// Package tokenusage estimates completion token counts for providers that
// omit a usage event on their stream, so RetryDriver-adjacent metrics still
// get a number rather than a blank. Providers that do report usage are
// never second-guessed; the estimator only fills a gap.
package tokenusage

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// modelEncodings maps an OpenAI-family model name to its tiktoken encoding.
// Non-OpenAI families fall back to cl100k_base, which is close enough for a
// rough estimate and is what every major provider's tokenizer converges on
// for English-heavy text.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// Estimator counts tokens for one encoding, lazily initialized since loading
// tiktoken's BPE ranks is not free and most requests never need the fallback.
type Estimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// ForModel returns an Estimator using the encoding tiktoken's real model
// registry uses for model, or cl100k_base if model isn't an OpenAI model.
func ForModel(model string) *Estimator {
	encoding, ok := modelEncodings[model]
	if !ok {
		longest := 0
		for prefix, enc := range modelEncodings {
			if len(prefix) > longest && len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				encoding = enc
				longest = len(prefix)
				ok = true
			}
		}
	}
	if !ok {
		encoding = "cl100k_base"
	}
	return &Estimator{encoding: encoding}
}

func (e *Estimator) init() error {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			e.initErr = err
			return
		}
		e.enc = enc
	})
	return e.initErr
}

// Count returns the estimated token count of text, or 0 if the encoding
// could not be loaded. Callers treat a failed estimate as "unknown" rather
// than propagating the error, since this is a best-effort fallback.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if err := e.init(); err != nil {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}
