package preflight

import (
	"context"
	"fmt"
)

// CheckEmbedder opens the configured embedder and asks whether it can serve
// requests. Indexing and search both need it, so failure is critical.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	cfg := c.cfg.Embeddings
	result := CheckResult{
		Name:     "embedder",
		Required: true,
		Details:  fmt.Sprintf("provider %s, model %s", cfg.Provider, cfg.Model),
	}
	if cfg.Provider == "ollama" {
		result.Details += ", host " + cfg.OllamaHost
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	e, err := c.newEmbedder(ctx, cfg)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	defer func() { _ = e.Close() }()

	if !e.Available(ctx) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not answering", e.ModelName())
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s ready (%d dimensions)", e.ModelName(), e.Dimensions())
	return result
}
