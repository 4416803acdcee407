package embed

import (
	"fmt"

	"github.com/nvandessel/annstore/internal/config"
)

// NewFromConfig builds the Embedder described by cfg's embedder section.
// Used by the CONFIGURE and MIGRATE_START request kinds, which describe
// the desired embedder declaratively (so they can travel over a
// line-delimited JSON request) rather than passing a live Embedder
// value directly.
func NewFromConfig(cfg config.Config) (Embedder, error) {
	switch cfg.Embedder.Type {
	case config.EmbedderOpenAI:
		if cfg.Embedder.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("embed: openai embedder requires an api key")
		}
		var opts []Option
		if cfg.Embedder.OpenAI.ModelName != "" {
			opts = append(opts, WithModel(cfg.Embedder.OpenAI.ModelName))
		}
		if cfg.Embedder.OpenAI.Endpoint != "" {
			opts = append(opts, WithBaseURL(cfg.Embedder.OpenAI.Endpoint))
		}
		return NewOpenAI(cfg.Embedder.OpenAI.APIKey, opts...), nil

	case config.EmbedderLocal, "":
		return NewLocal(LocalConfig{ModelPath: cfg.Embedder.Local.ModelName}), nil

	default:
		return nil, fmt.Errorf("embed: unknown embedder type %q", cfg.Embedder.Type)
	}
}
