package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"

	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
)

// StaticEmbedder maps chunk text to a feature-hashed vector. It reads the
// text line by line: identifiers on declaration lines count most, import and
// package lines (the chunk context) count least, so chunks of one file are
// not pulled together by their shared header. It needs no model process and
// is deterministic across hosts.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// Line weights.
const (
	declWeight    = 1.5
	bodyWeight    = 1.0
	contextWeight = 0.25

	// compoundWeight scales a whole multi-part identifier against its parts.
	compoundWeight = 0.5
	// gramWeight scales each trigram of an identifier part.
	gramWeight = 0.3
)

var (
	wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)
	declPattern = regexp.MustCompile(`^\s*(?:export\s+|pub(?:\([a-z]+\))?\s+|public\s+|private\s+|static\s+|async\s+)*` +
		`(?:func|def|class|type|interface|struct|enum|trait|impl|fn|function|module)\b`)
	contextPattern = regexp.MustCompile(`^\s*(?:package|import|from\s+\S+\s+import|use|require|#include|using)\b`)
)

// keywords never become features; they say nothing about what a chunk does.
var keywords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true, "fn": true,
	"return": true, "import": true, "package": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true, "void": true,
	"true": true, "false": true, "nil": true, "null": true, "none": true,
	"this": true, "self": true, "new": true, "if": true, "else": true,
	"for": true, "in": true, "err": true, "pub": true, "type": true,
}

// NewStaticEmbedder creates a static embedder with dims buckets. Zero or
// negative dims selects StaticDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// embed returns the unit vector of text. Blank text maps to the zero vector.
func (e *StaticEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dims)
	if strings.TrimSpace(text) == "" {
		return vec
	}

	features := extractFeatures(text)
	if len(features) == 0 {
		// Only keywords or punctuation: the text itself is the feature.
		features[strings.ToLower(strings.TrimSpace(text))] = bodyWeight
	}
	for f, w := range features {
		idx, sign := bucket(f, e.dims)
		vec[idx] += sign * float32(math.Sqrt(float64(w)))
	}
	return normalizeVector(vec)
}

// extractFeatures returns the weighted features of text. Repeats add up and
// are damped when hashed.
func extractFeatures(text string) map[string]float32 {
	features := make(map[string]float32)
	for line := range strings.Lines(text) {
		weight := float32(bodyWeight)
		switch {
		case contextPattern.MatchString(line):
			weight = contextWeight
		case declPattern.MatchString(line):
			weight = declWeight
		}

		for _, word := range wordPattern.FindAllString(line, -1) {
			parts := identifierParts(word)
			kept := 0
			for _, p := range parts {
				if keywords[p] {
					continue
				}
				kept++
				features[p] += weight
				for _, g := range trigrams(p) {
					features["#"+g] += weight * gramWeight
				}
			}
			if kept > 1 {
				features["="+strings.Join(parts, "")] += weight * compoundWeight
			}
		}
	}
	return features
}

// identifierParts splits snake_case and camelCase into lower-case parts.
// An acronym stays whole: HTTPServer gives http and server.
func identifierParts(word string) []string {
	var parts []string
	for _, piece := range strings.Split(word, "_") {
		runes := []rune(piece)
		start := 0
		for i := 1; i < len(runes); i++ {
			upper := unicode.IsUpper(runes[i])
			afterLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			beforeLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if upper && (afterLower || (unicode.IsUpper(runes[i-1]) && beforeLower)) {
				parts = append(parts, strings.ToLower(string(runes[start:i])))
				start = i
			}
		}
		if start < len(runes) {
			parts = append(parts, strings.ToLower(string(runes[start:])))
		}
	}
	return parts
}

// trigrams returns the three-letter windows of part, none for short parts.
func trigrams(part string) []string {
	if len(part) < 4 {
		return nil
	}
	out := make([]string, 0, len(part)-2)
	for i := 0; i+3 <= len(part); i++ {
		out = append(out, part[i:i+3])
	}
	return out
}

// bucket hashes feature to an index and a sign. The sign keeps collisions
// from adding up to a bias.
func bucket(feature string, dims int) (int, float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	sign := float32(1)
	if sum>>63 == 1 {
		sign = -1
	}
	return int(sum % uint64(dims)), sign
}

// EmbedBatch implements Embedder.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, cserrors.EmbeddingUnavailable("static embedder is closed", nil)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

// Dimensions implements Embedder.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// ModelName includes the dimension so caches built at another size are never
// reused.
func (e *StaticEmbedder) ModelName() string {
	return fmt.Sprintf("static-%d", e.dims)
}

// Available reports true until Close.
func (e *StaticEmbedder) Available(context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close implements Embedder.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
