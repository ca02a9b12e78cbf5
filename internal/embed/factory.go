package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ProviderType selects an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses an Ollama-compatible HTTP API (default).
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses deterministic hash-based embeddings.
	ProviderStatic ProviderType = "static"
)

// FactoryConfig configures embedder construction.
type FactoryConfig struct {
	Provider  ProviderType
	Ollama    OllamaConfig
	CacheSize int

	// DisableCache skips the LRU wrapper.
	DisableCache bool
}

// NewEmbedder creates an embedder for the configured provider. The
// CLIPSTASH_EMBEDDER environment variable overrides the provider, and an
// explicit override never falls back silently: if the named provider is
// unavailable the error propagates so the caller can degrade to
// keyword-only search deliberately.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	provider := cfg.Provider
	if env := os.Getenv("CLIPSTASH_EMBEDDER"); env != "" {
		provider = ProviderType(strings.ToLower(env))
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	case ProviderOllama, "":
		embedder, err = NewOllamaEmbedder(ctx, cfg.Ollama)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	if cfg.DisableCache {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, cfg.CacheSize), nil
}
