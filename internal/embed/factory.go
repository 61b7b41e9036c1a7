package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/codesearch/internal/config"
	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings computed in process
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API
	ProviderOllama ProviderType = "ollama"
)

// ParseProvider converts a string to ProviderType
func ParseProvider(s string) (ProviderType, error) {
	switch ProviderType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProviderStatic:
		return ProviderStatic, nil
	case ProviderOllama:
		return ProviderOllama, nil
	default:
		return "", cserrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", s), nil).
			WithSuggestion("use 'static' or 'ollama'")
	}
}

// NewEmbedder creates the embedder selected by cfg. There is no silent
// fallback between providers: an unreachable model is EmbeddingUnavailable.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var e Embedder
	switch provider {
	case ProviderOllama:
		e, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
			Retry:      cserrors.DefaultRetryConfig(),
		})
		if err != nil {
			return nil, err
		}
	default:
		e = NewStaticEmbedder(cfg.Dimensions)
	}

	slog.Debug("embedder_ready",
		slog.String("provider", string(provider)),
		slog.String("model", e.ModelName()),
		slog.Int("dimensions", e.Dimensions()))
	return e, nil
}
