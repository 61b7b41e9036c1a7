package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
)

// Ollama API constants
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaConnectTimeout bounds the health check at construction
	OllamaConnectTimeout = 5 * time.Second

	// OllamaPoolSize for connection pool
	OllamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model to use
	Model string

	// Dimensions can be set to override auto-detection (0 = probe on first use)
	Dimensions int

	// BatchSize caps texts per request (default: 32)
	BatchSize int

	// Timeout for one API request (default: 60s)
	Timeout time.Duration

	// Retry controls backoff for failed requests
	Retry cserrors.RetryConfig

	// SkipHealthCheck skips the availability check at construction (for testing)
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns sensible defaults
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:      DefaultOllamaHost,
		Model:     DefaultOllamaModel,
		BatchSize: DefaultBatchSize,
		Timeout:   DefaultTimeout,
		Retry:     cserrors.DefaultRetryConfig(),
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ollamaStatusError is a non-200 response. 5xx and 429 are worth retrying.
type ollamaStatusError struct {
	status int
	body   string
}

func (e *ollamaStatusError) Error() string {
	return fmt.Sprintf("ollama returned status %d: %s", e.status, e.body)
}

func retryableOllamaError(err error) bool {
	if errors.Is(err, cserrors.ErrDimensionMismatch) {
		return false
	}
	var se *ollamaStatusError
	if errors.As(err, &se) {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	return true
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates a new Ollama embedder. Unless SkipHealthCheck is
// set it confirms the server is reachable and the model is pulled, and probes
// the dimension when none is configured.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	cfg.BatchSize = ClampBatchSize(cfg.BatchSize)
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = cserrors.DefaultRetryConfig()
	}
	cfg.Retry.ShouldRetry = retryableOllamaError

	// No client-wide timeout: each request gets its own context deadline.
	transport := &http.Transport{
		MaxIdleConns:        OllamaPoolSize,
		MaxIdleConnsPerHost: OllamaPoolSize,
		MaxConnsPerHost:     OllamaPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout)
		defer cancel()
		if !e.Available(checkCtx) {
			transport.CloseIdleConnections()
			return nil, cserrors.EmbeddingUnavailable(
				fmt.Sprintf("ollama model %s not available at %s", cfg.Model, cfg.Host), nil).
				WithSuggestion(fmt.Sprintf("run 'ollama pull %s' or switch embeddings.provider to static", cfg.Model))
		}
		if err := e.ensureDimensions(ctx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
	}
	return e, nil
}

// ensureDimensions probes the model when no dimension is known yet.
func (e *OllamaEmbedder) ensureDimensions(ctx context.Context) error {
	if e.Dimensions() > 0 {
		return nil
	}
	vecs, err := e.embedWithRetry(ctx, []string{"dimension probe"})
	if err != nil {
		return err
	}
	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vecs[0])
	}
	e.mu.Unlock()
	return nil
}

// EmbedBatch embeds texts in requests of at most BatchSize texts.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, cserrors.EmbeddingUnavailable("ollama embedder is closed", nil)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := e.ensureDimensions(ctx); err != nil {
		return nil, err
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))
		vecs, err := e.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}
	return results, nil
}

// embedWithRetry runs one request with backoff. Failures after the last
// attempt are EmbeddingUnavailable; cancellation is returned as is.
func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := cserrors.Retry(ctx, e.config.Retry, func(ctx context.Context) ([][]float32, error) {
		reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		vecs, err := e.doEmbed(reqCtx, texts)
		if err != nil {
			slog.Debug("embedding_attempt_failed",
				slog.String("model", e.config.Model),
				slog.Int("texts", len(texts)),
				slog.String("error", err.Error()))
		}
		return vecs, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, cserrors.EmbeddingUnavailable("ollama embedding request failed", err).
			WithDetail("model", e.config.Model)
	}
	return vecs, nil
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ollamaStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	e.mu.RLock()
	dims := e.dims
	e.mu.RUnlock()

	vecs := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if dims > 0 && len(emb) != dims {
			return nil, cserrors.DimensionMismatch(dims, len(emb))
		}
		v := make([]float32, len(emb))
		for j, f := range emb {
			v[j] = float32(f)
		}
		vecs[i] = normalizeVector(v)
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension, zero until probed.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks if Ollama is running and the model is pulled.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	want := strings.ToLower(e.config.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return true
		}
	}
	return false
}

// Close releases resources
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
