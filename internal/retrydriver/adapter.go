package retrydriver

import (
	"time"

	"github.com/soilSpoon/llmux/internal/domain/router"
)

// RouterAdapter satisfies RouterView using the concrete *router.Router,
// translating between router.Target and the (provider, model string) pairs
// this package's classification logic deals in.
type RouterAdapter struct {
	Router *router.Router
}

func (a RouterAdapter) ResolveModel(requestedModel string) (string, string) {
	t := a.Router.ResolveModel(requestedModel)
	return t.Provider, t.Model
}

func (a RouterAdapter) HandleRateLimit(provider, model string, retryAfterMs int64) time.Duration {
	return a.Router.HandleRateLimit(router.Target{Provider: provider, Model: model}, retryAfterMs)
}
