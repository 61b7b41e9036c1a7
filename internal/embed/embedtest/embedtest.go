// Package embedtest provides embedder doubles for tests.
package embedtest

import (
	"context"
	"sync"

	"github.com/Aman-CERP/codesearch/internal/embed"
	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
)

// Counting wraps a static embedder and records every text it embeds. Setting
// Fail makes every later call return EmbeddingUnavailable.
type Counting struct {
	inner *embed.StaticEmbedder

	mu    sync.Mutex
	calls int
	texts []string
	fail  bool
}

var _ embed.Embedder = (*Counting)(nil)

// NewCounting returns a Counting embedder producing dims-sized vectors.
func NewCounting(dims int) *Counting {
	return &Counting{inner: embed.NewStaticEmbedder(dims)}
}

// EmbedBatch implements embed.Embedder.
func (c *Counting) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	if c.fail {
		c.mu.Unlock()
		return nil, cserrors.EmbeddingUnavailable("embedder failure injected", nil)
	}
	c.calls++
	c.texts = append(c.texts, texts...)
	c.mu.Unlock()
	return c.inner.EmbedBatch(ctx, texts)
}

// Dimensions implements embed.Embedder.
func (c *Counting) Dimensions() int { return c.inner.Dimensions() }

// ModelName implements embed.Embedder.
func (c *Counting) ModelName() string { return c.inner.ModelName() }

// Available implements embed.Embedder.
func (c *Counting) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close implements embed.Embedder.
func (c *Counting) Close() error { return c.inner.Close() }

// SetFail toggles failure injection.
func (c *Counting) SetFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

// Calls returns the number of successful EmbedBatch calls.
func (c *Counting) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Texts returns the number of texts embedded so far.
func (c *Counting) Texts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

// Reset clears the counters.
func (c *Counting) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
	c.texts = nil
}
