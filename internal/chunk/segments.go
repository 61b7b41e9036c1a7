package chunk

import (
	"sort"
	"strings"

	"github.com/Aman-CERP/codesearch/internal/fingerprint"
)

// segment is a line range on its way to becoming a chunk.
type segment struct {
	start, end int // 1-indexed, inclusive
	typ        ChunkType
	name       string
	// key groups segments that may merge. Top-level code shares key 0; each
	// class gets its own key so nothing merges across a class boundary.
	key int
	// decl is false for the gaps between declarations.
	decl bool
	// split marks a window of an oversized segment; windows never merge.
	split bool
	// breaks are preferred split lines (statement starts), ascending.
	breaks []int
	// members are the declarations inside a class, used when it must split.
	members []segment
}

// assembler lays out the segments of one file.
type assembler struct {
	lines   []string
	prefix  []int // prefix[i] is the size of lines[0:i], newlines included
	opts    Options
	nextKey int
}

func newAssembler(lines []string, opts Options) *assembler {
	prefix := make([]int, len(lines)+1)
	for i, l := range lines {
		prefix[i+1] = prefix[i] + len(l) + 1
	}
	return &assembler{lines: lines, prefix: prefix, opts: opts, nextKey: 1}
}

func (a *assembler) newKey() int {
	k := a.nextKey
	a.nextKey++
	return k
}

func (a *assembler) size(start, end int) int {
	return a.prefix[end] - a.prefix[start-1]
}

func (a *assembler) blank(start, end int) bool {
	for i := start; i <= end; i++ {
		if strings.TrimSpace(a.lines[i-1]) != "" {
			return false
		}
	}
	return true
}

// layout covers [from, to] with decls and the gaps between them, then
// attaches gaps, splits oversized segments and merges small neighbours.
func (a *assembler) layout(decls []segment, from, to, key int) []segment {
	sort.SliceStable(decls, func(i, j int) bool { return decls[i].start < decls[j].start })

	var segs []segment
	cursor := from
	for _, d := range decls {
		if d.start < cursor {
			d.start = cursor
		}
		if d.end > to {
			d.end = to
		}
		if d.start > d.end {
			continue
		}
		if d.start > cursor {
			segs = append(segs, segment{start: cursor, end: d.start - 1, typ: TypeBlock, key: key})
		}
		segs = append(segs, d)
		cursor = d.end + 1
	}
	if cursor <= to {
		segs = append(segs, segment{start: cursor, end: to, typ: TypeBlock, key: key})
	}

	segs = a.attachGaps(segs)
	segs = a.expand(segs)
	return a.mergeSmall(segs)
}

// attachGaps folds each gap into the following declaration (leading
// comments, imports) or else the preceding one when the result still fits.
// Blank gaps always attach. Remaining gaps stand alone as blocks.
func (a *assembler) attachGaps(segs []segment) []segment {
	out := make([]segment, 0, len(segs))
	for i := 0; i < len(segs); i++ {
		g := segs[i]
		if g.decl {
			out = append(out, g)
			continue
		}
		blank := a.blank(g.start, g.end)
		gapSize := a.size(g.start, g.end)

		if i+1 < len(segs) && segs[i+1].decl {
			next := &segs[i+1]
			if blank || gapSize+a.size(next.start, next.end) <= a.opts.ChunkSize {
				next.start = g.start
				continue
			}
		}
		if n := len(out); n > 0 && out[n-1].decl {
			prev := &out[n-1]
			if blank || a.size(prev.start, prev.end)+gapSize <= a.opts.ChunkSize {
				prev.end = g.end
				continue
			}
		}
		out = append(out, g)
	}
	return out
}

// expand splits every segment above the size ceiling: classes into their
// members, everything else into overlapping windows.
func (a *assembler) expand(segs []segment) []segment {
	out := make([]segment, 0, len(segs))
	for _, s := range segs {
		if a.size(s.start, s.end) <= a.opts.ChunkSize {
			out = append(out, s)
			continue
		}
		if len(s.members) > 0 {
			key := a.newKey()
			members := make([]segment, len(s.members))
			for i, m := range s.members {
				m.key = key
				members[i] = m
			}
			out = append(out, a.layout(members, s.start, s.end, key)...)
			continue
		}
		out = append(out, a.windows(s)...)
	}
	return out
}

// windows cuts s into pieces of at most ChunkSize characters that overlap by
// up to ChunkOverlap characters. A piece prefers to end before a statement
// start when that keeps it at least half full. A single line longer than the
// ceiling becomes one oversized piece.
func (a *assembler) windows(s segment) []segment {
	var out []segment
	start := s.start
	for start <= s.end {
		end := start
		for end < s.end && a.size(start, end+1) <= a.opts.ChunkSize {
			end++
		}

		if end < s.end {
			for i := len(s.breaks) - 1; i >= 0; i-- {
				b := s.breaks[i]
				if b <= start || b > end {
					continue
				}
				if a.size(start, b-1) >= a.opts.ChunkSize/2 {
					end = b - 1
				}
				break
			}
		}

		piece := s
		piece.start, piece.end = start, end
		piece.split = true
		piece.members = nil
		out = append(out, piece)

		if end >= s.end {
			break
		}
		next := end + 1
		for next-1 > start && a.size(next-1, end) <= a.opts.ChunkOverlap {
			next--
		}
		start = next
	}
	return out
}

// mergeSmall joins adjacent segments with the same key when one of them is
// below MinChunkSize and the union still fits.
func (a *assembler) mergeSmall(segs []segment) []segment {
	out := make([]segment, 0, len(segs))
	for _, s := range segs {
		if n := len(out); n > 0 {
			p := &out[n-1]
			small := a.size(p.start, p.end) < a.opts.MinChunkSize || a.size(s.start, s.end) < a.opts.MinChunkSize
			if small && !p.split && !s.split && p.key == s.key && p.end+1 == s.start &&
				a.size(p.start, s.end) <= a.opts.ChunkSize {
				p.end = s.end
				if !p.decl && s.decl {
					p.typ, p.name, p.decl = s.typ, s.name, true
				}
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// build lays out decls over the whole file and renders the chunks.
func build(file *File, decls []segment, context string, a *assembler) []CodeChunk {
	segs := a.layout(decls, 1, len(file.Lines), 0)
	chunks := make([]CodeChunk, 0, len(segs))
	for _, s := range segs {
		content := strings.Join(file.Lines[s.start-1:s.end], "\n")
		chunks = append(chunks, CodeChunk{
			FilePath:    file.Path,
			StartLine:   s.start,
			EndLine:     s.end,
			Type:        s.typ,
			Name:        s.name,
			Context:     context,
			Content:     content,
			ContentHash: fingerprint.Chunk(context, content),
		})
	}
	return chunks
}

// splitLines splits text into lines, dropping the empty string after a
// trailing newline.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 1 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
