package chunking

import (
	"strings"

	"tutorbase/internal/core/domain"
)

// Unit selects how window sizes are measured.
type Unit string

const (
	UnitToken Unit = "token"
	UnitChar  Unit = "char"
)

const (
	defaultMaxTokens     = 1000
	defaultOverlapTokens = 200
	defaultMaxChars      = 3000
	defaultOverlapChars  = 600
)

// Sentence/paragraph breaks tried in order when snapping a window edge.
var breakPatterns = [][2]rune{
	{'.', ' '}, {'.', '\n'},
	{'!', ' '}, {'!', '\n'},
	{'?', ' '}, {'?', '\n'},
	{'\n', '\n'},
}

type Splitter struct {
	maxUnits int
	overlap  int
	unit     Unit
	est      TokenEstimator
}

func NewSplitter(maxUnits, overlap int, unit Unit) *Splitter {
	if unit != UnitChar {
		unit = UnitToken
	}
	if maxUnits <= 0 {
		if unit == UnitToken {
			maxUnits = defaultMaxTokens
		} else {
			maxUnits = defaultMaxChars
		}
	}
	if overlap < 0 {
		if unit == UnitToken {
			overlap = defaultOverlapTokens
		} else {
			overlap = defaultOverlapChars
		}
	}
	if overlap >= maxUnits {
		overlap = maxUnits / 4
	}
	return &Splitter{
		maxUnits: maxUnits,
		overlap:  overlap,
		unit:     unit,
		est:      heuristicEstimator{},
	}
}

type pageBoundary struct {
	page  int
	start int // rune offset in the concatenated text, inclusive
	end   int // exclusive; the page joiner is not part of any page
}

// SplitText chunks a plain document as a single implicit page 1.
func (s *Splitter) SplitText(text string) []domain.Chunk {
	return s.SplitPages([]domain.PageText{{Page: 1, Text: text}})
}

// SplitPages concatenates page texts in order, chunks the combined text into
// overlapping windows, and attributes each chunk to the page range its span
// overlaps. Empty input yields an empty result, not an error.
func (s *Splitter) SplitPages(pages []domain.PageText) []domain.Chunk {
	text, boundaries := joinPages(pages)
	if len(strings.TrimSpace(string(text))) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	if s.unit == UnitToken {
		chunks = s.splitByTokens(text)
	} else {
		chunks = s.splitByChars(text)
	}

	for i := range chunks {
		chunks[i].PageStart, chunks[i].PageEnd = attributePages(boundaries, chunks[i].CharStart, chunks[i].CharEnd)
	}
	return chunks
}

func joinPages(pages []domain.PageText) ([]rune, []pageBoundary) {
	var sb strings.Builder
	boundaries := make([]pageBoundary, 0, len(pages))
	offset := 0
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		runeLen := len([]rune(p.Text))
		boundaries = append(boundaries, pageBoundary{
			page:  p.Page,
			start: offset,
			end:   offset + runeLen,
		})
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
		offset += runeLen + 2
	}
	return []rune(sb.String()), boundaries
}

func (s *Splitter) splitByChars(text []rune) []domain.Chunk {
	total := len(text)
	out := make([]domain.Chunk, 0, total/s.maxUnits+1)

	start := 0
	index := 0
	for start < total {
		end := start + s.maxUnits
		if end >= total {
			end = total
		} else {
			end = snapToBreak(text, start, end)
		}

		content := strings.TrimSpace(string(text[start:end]))
		if content != "" {
			out = append(out, domain.Chunk{
				Index:      index,
				Content:    content,
				CharStart:  start,
				CharEnd:    end,
				TokenCount: s.est.Count(content),
			})
			index++
		}

		if end == total {
			break
		}
		start = advance(start, end, s.overlap)
	}
	return out
}

func (s *Splitter) splitByTokens(text []rune) []domain.Chunk {
	spans := s.est.Spans(string(text))
	total := len(spans)
	if total == 0 {
		return nil
	}
	out := make([]domain.Chunk, 0, total/s.maxUnits+1)

	startTok := 0
	index := 0
	for startTok < total {
		endTok := startTok + s.maxUnits
		if endTok > total {
			endTok = total
		}
		charStart := spans[startTok].Start
		charEnd := spans[endTok-1].End

		if endTok < total {
			if snapped := snapToBreak(text, charStart, charEnd); snapped < charEnd {
				charEnd = snapped
				// Resynchronize the token cursor with the truncated window so
				// the next window starts where this one actually ended.
				endTok = resyncTokens(spans, startTok, charEnd)
			}
		}

		content := strings.TrimSpace(string(text[charStart:charEnd]))
		if content != "" {
			out = append(out, domain.Chunk{
				Index:      index,
				Content:    content,
				CharStart:  charStart,
				CharEnd:    charEnd,
				TokenCount: endTok - startTok,
			})
			index++
		}

		if endTok == total {
			break
		}
		startTok = advance(startTok, endTok, s.overlap)
	}
	return out
}

// advance moves the window start by at least one unit. Overlap arithmetic or
// boundary snapping must never produce a non-advancing window.
func advance(start, end, overlap int) int {
	next := end
	if overlap > 0 {
		next = end - overlap
	}
	if next <= start {
		next = end
	}
	if next <= start {
		next = start + 1
	}
	return next
}

// snapToBreak searches backward from end for the nearest sentence or
// paragraph break, accepting it only past the midpoint of the window.
// Returns the original end when no acceptable break exists.
func snapToBreak(text []rune, start, end int) int {
	mid := start + (end-start)/2
	for _, p := range breakPatterns {
		for i := end - 2; i > mid; i-- {
			if text[i] == p[0] && text[i+1] == p[1] {
				return i + 2
			}
		}
	}
	return end
}

// resyncTokens returns the index just past the last token that still fits
// before charEnd. Keeps at least one token so a window covering a single
// oversized span is emitted rather than dropped.
func resyncTokens(spans []Span, startTok, charEnd int) int {
	endTok := startTok + 1
	for endTok < len(spans) && spans[endTok].End <= charEnd {
		endTok++
	}
	return endTok
}

// attributePages maps a chunk span to the min/max of the pages it overlaps.
// When no boundary overlaps at all, the nearest pages by proximity are used.
func attributePages(boundaries []pageBoundary, charStart, charEnd int) (int, int) {
	if len(boundaries) == 0 {
		return 1, 1
	}

	first, last := 0, 0
	found := false
	for _, b := range boundaries {
		if charEnd <= b.start || charStart >= b.end {
			continue
		}
		if !found {
			first, last = b.page, b.page
			found = true
			continue
		}
		if b.page < first {
			first = b.page
		}
		if b.page > last {
			last = b.page
		}
	}
	if found {
		return first, last
	}

	// Should not happen with correct offset bookkeeping, but a chunk is
	// never left without a page.
	first = boundaries[0].page
	for _, b := range boundaries {
		if charStart < b.end {
			first = b.page
			break
		}
	}
	last = boundaries[len(boundaries)-1].page
	for i := len(boundaries) - 1; i >= 0; i-- {
		if charEnd > boundaries[i].start {
			last = boundaries[i].page
			break
		}
	}
	return first, last
}
