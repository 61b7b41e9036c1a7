// Package telemetry aggregates search activity in memory: latency
// histogram, zero-result queries, frequent terms and repeat rate. Nothing
// is persisted or reported outside the process.
package telemetry

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one finished search.
type QueryEvent struct {
	Query       string
	ResultCount int
	Latency     time.Duration
	// Filtered is set when the request narrowed results by scope, language
	// or chunk type.
	Filtered bool
	// Failed is set when the search returned an error.
	Failed bool
}

// IsZeroResult reports whether a successful search found nothing.
func (e QueryEvent) IsZeroResult() bool {
	return !e.Failed && e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
}

// NewCircularBuffer creates a buffer holding capacity items; non-positive
// means 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity)}
}

// Add adds an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	b.size = min(b.size+1, len(b.items))
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, 0, b.size)
	start := (b.head - b.size + len(b.items)) % len(b.items)
	for i := range b.size {
		out = append(out, b.items[(start+i)%len(b.items)])
	}
	return out
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and returns its words of three or more
// bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and how many queries used it.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	FailedQueries       int64                   `json:"failed_queries"`
	FilteredQueries     int64                   `json:"filtered_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TopTerms            []TermCount             `json:"top_terms"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	ExactRepeatRate     float64                 `json:"exact_repeat_rate"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of searches that found nothing.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Config bounds what the collector remembers.
type Config struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
	// TopTermsLimit is how many terms a Snapshot reports.
	TopTermsLimit int
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      500,
		ZeroResultsCapacity:   50,
		RecentQueriesCapacity: 500,
		TopTermsLimit:         20,
	}
}

// QueryMetrics collects search telemetry. It is safe for concurrent use.
type QueryMetrics struct {
	mu  sync.Mutex
	cfg Config

	total, failed, filtered, zero int64
	exactRepeats                  int64
	latencies                     map[LatencyBucket]int64
	topTerms                      *lru.Cache[string, int64]
	recentQueries                 *lru.Cache[string, struct{}]
	zeroResults                   *CircularBuffer[string]
	since                         time.Time
}

// NewQueryMetrics creates a collector with the default bounds.
func NewQueryMetrics() *QueryMetrics {
	return NewQueryMetricsWithConfig(DefaultConfig())
}

// NewQueryMetricsWithConfig creates a collector; zero fields take defaults.
func NewQueryMetricsWithConfig(cfg Config) *QueryMetrics {
	def := DefaultConfig()
	cfg.TopTermsCapacity = cmp.Or(max(cfg.TopTermsCapacity, 0), def.TopTermsCapacity)
	cfg.ZeroResultsCapacity = cmp.Or(max(cfg.ZeroResultsCapacity, 0), def.ZeroResultsCapacity)
	cfg.RecentQueriesCapacity = cmp.Or(max(cfg.RecentQueriesCapacity, 0), def.RecentQueriesCapacity)
	cfg.TopTermsLimit = cmp.Or(max(cfg.TopTermsLimit, 0), def.TopTermsLimit)

	// lru.New only fails for non-positive sizes.
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)
	return &QueryMetrics{
		cfg:           cfg,
		latencies:     make(map[LatencyBucket]int64),
		topTerms:      topTerms,
		recentQueries: recent,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		since:         time.Now(),
	}
}

// Record adds one search.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latencies[LatencyToBucket(event.Latency)]++
	if event.Filtered {
		m.filtered++
	}
	if event.Failed {
		m.failed++
		return
	}
	if event.IsZeroResult() {
		m.zero++
		m.zeroResults.Add(event.Query)
	}

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	key := strings.Join(strings.Fields(strings.ToLower(event.Query)), " ")
	if found, _ := m.recentQueries.ContainsOrAdd(key, struct{}{}); found {
		m.exactRepeats++
	}
}

// Snapshot returns a copy of the current metrics.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	slices.SortFunc(terms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})
	terms = terms[:min(len(terms), m.cfg.TopTermsLimit)]

	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	var repeatRate float64
	if ok := m.total - m.failed; ok > 0 {
		repeatRate = float64(m.exactRepeats) / float64(ok)
	}

	return &Snapshot{
		TotalQueries:        m.total,
		FailedQueries:       m.failed,
		FilteredQueries:     m.filtered,
		ZeroResultCount:     m.zero,
		ZeroResultQueries:   m.zeroResults.Items(),
		TopTerms:            terms,
		LatencyDistribution: latencies,
		ExactRepeatCount:    m.exactRepeats,
		ExactRepeatRate:     repeatRate,
		Since:               m.since,
	}
}
