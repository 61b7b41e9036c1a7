package store

import (
	"math"

	"github.com/coder/hnsw"
)

// hnswIndex is an approximate candidate index over the store snapshot.
// Nodes are keyed by record sequence number. Removal is lazy: the node stays
// in the graph and is filtered out of results, because deleting nodes from a
// coder/hnsw graph can leave it without an entry point.
//
// Callers hold the store lock.
type hnswIndex struct {
	graph *hnsw.Graph[uint64]
	live  map[uint64]struct{}
	m     int
	ef    int
}

func newHNSWIndex(m, ef int) *hnswIndex {
	if m <= 0 {
		m = 16
	}
	if ef <= 0 {
		ef = 64
	}
	return &hnswIndex{
		graph: newGraph(m, ef),
		live:  make(map[uint64]struct{}),
		m:     m,
		ef:    ef,
	}
}

func newGraph(m, ef int) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = m
	g.EfSearch = ef
	g.Ml = 0.25
	return g
}

// add inserts a normalized vector under seq.
func (h *hnswIndex) add(seq uint64, normalized []float32) {
	h.graph.Add(hnsw.MakeNode(seq, normalized))
	h.live[seq] = struct{}{}
}

// remove orphans seq.
func (h *hnswIndex) remove(seq uint64) {
	delete(h.live, seq)
}

// search returns up to n live sequence numbers near the normalized query.
// It widens the graph search while orphans crowd out live nodes.
func (h *hnswIndex) search(normalized []float32, n int) []uint64 {
	if n <= 0 || len(h.live) == 0 {
		return nil
	}
	total := h.graph.Len()
	want := n
	for {
		nodes := h.graph.Search(normalized, want)
		seqs := make([]uint64, 0, n)
		for _, node := range nodes {
			if _, ok := h.live[node.Key]; ok {
				seqs = append(seqs, node.Key)
				if len(seqs) == n {
					return seqs
				}
			}
		}
		if want >= total {
			return seqs
		}
		want *= 2
		if want > total {
			want = total
		}
	}
}

// orphans is the number of graph nodes no longer backed by a record.
func (h *hnswIndex) orphans() int {
	return h.graph.Len() - len(h.live)
}

// needsCompaction reports whether orphans outnumber live nodes.
func (h *hnswIndex) needsCompaction() bool {
	return h.orphans() > len(h.live) && h.orphans() > 1000
}

// rebuild replaces the graph with one holding only the given entries, in order.
func (h *hnswIndex) rebuild(entries []*entry) {
	h.graph = newGraph(h.m, h.ef)
	h.live = make(map[uint64]struct{}, len(entries))
	for _, e := range entries {
		h.add(e.seq, e.norm)
	}
}

// normalize returns a unit-length copy of v. A zero vector stays zero.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return out
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range out {
		out[i] *= inv
	}
	return out
}

// dot is the cosine similarity of two normalized vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
