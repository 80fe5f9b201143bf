package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/soilSpoon/llmux/internal/domain/modelmap"
	"github.com/soilSpoon/llmux/internal/domain/router"
)

// parseTarget turns one "to" entry ("gpt-4" or "gpt-4:openai") into a
// router.Target, inferring the provider from the model name when no
// ":provider" suffix is present. Mirrors router.Router.inferTarget's own
// suffix-parsing so config-authored fallback chains and inline aliases
// behave identically.
func parseTarget(entry string) router.Target {
	if idx := strings.LastIndex(entry, ":"); idx >= 0 {
		provider := entry[idx+1:]
		if modelmap.ValidProviders[provider] {
			return router.Target{Provider: provider, Model: entry[:idx]}
		}
	}
	return router.Target{Provider: modelmap.InferProvider(entry), Model: entry}
}

// BuildRouterMappings converts the config's routing.modelMapping section
// into the table router.Router.SetMappings consumes.
func BuildRouterMappings(cfg *Config) map[string]router.Mapping {
	out := make(map[string]router.Mapping, len(cfg.Routing.ModelMapping))
	for key, mm := range cfg.Routing.ModelMapping {
		if len(mm.To) == 0 {
			continue
		}
		primary := parseTarget(mm.To[0])
		fallbacks := make([]router.Target, 0, len(mm.To)-1)
		for _, fb := range mm.To[1:] {
			fallbacks = append(fallbacks, parseTarget(fb))
		}
		out[strings.ToLower(strings.TrimSpace(key))] = router.Mapping{
			Primary:   primary,
			Fallbacks: fallbacks,
		}
	}
	return out
}

// WatchRouting reloads v's config.json on an fsnotify write event and
// swaps r's mapping table in place.
func WatchRouting(v *viper.Viper, r *router.Router, logger *zap.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			logger.Warn("config reload failed, keeping previous routing table", zap.Error(err), zap.String("file", e.Name))
			return
		}
		r.SetMappings(BuildRouterMappings(&cfg))
		logger.Info("routing table reloaded", zap.String("file", e.Name), zap.Int("mappings", len(cfg.Routing.ModelMapping)))
	})
	v.WatchConfig()
}
