package ui

import "strings"

// sparkChars are the eight bar heights, lowest first.
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a fixed-size ring of throughput samples rendered as bars.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding size samples.
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{samples: make([]float64, size)}
}

// Add appends a sample, overwriting the oldest once full.
func (s *Sparkline) Add(v float64) {
	s.samples[s.head] = v
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Clear drops every sample.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head, s.count = 0, 0
}

// Len returns the number of samples held.
func (s *Sparkline) Len() int {
	return min(s.count, len(s.samples))
}

// recent returns up to n samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	held := s.Len()
	n = min(n, held)
	out := make([]float64, 0, n)
	start := (s.head - n + len(s.samples)) % len(s.samples)
	for i := range n {
		out = append(out, s.samples[(start+i)%len(s.samples)])
	}
	return out
}

// Render draws the most recent width samples scaled to their maximum,
// left-padded with spaces when fewer are held.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	values := s.recent(width)

	peak := 0.0
	for _, v := range values {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(" ", width-len(values)))
	for _, v := range values {
		idx := 0
		if peak > 0 {
			idx = int(v / peak * float64(len(sparkChars)-1))
		}
		idx = max(0, min(idx, len(sparkChars)-1))
		sb.WriteRune(sparkChars[idx])
	}
	return sb.String()
}
