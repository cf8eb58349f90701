package chunking

import (
	"strings"
	"testing"

	"tutorbase/internal/core/domain"
)

func TestSplitPagesSingleChunkSpansAllPages(t *testing.T) {
	pages := []domain.PageText{
		{Page: 1, Text: "The cell is the basic unit of life."},
		{Page: 2, Text: "Mitochondria produce energy."},
		{Page: 3, Text: "Chloroplasts capture sunlight."},
	}
	s := NewSplitter(1000, 200, UnitToken)

	chunks := s.SplitPages(pages)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].PageStart != 1 || chunks[0].PageEnd != 3 {
		t.Fatalf("expected pages 1-3, got %d-%d", chunks[0].PageStart, chunks[0].PageEnd)
	}
	if chunks[0].Index != 0 {
		t.Fatalf("expected index 0, got %d", chunks[0].Index)
	}
}

func TestSplitCharsExactWindowsWithoutBreaks(t *testing.T) {
	// 30 break-free chars at window 3 with no overlap must yield exactly
	// 10 chunks and terminate.
	text := strings.Repeat("abc", 10)
	s := NewSplitter(3, 0, UnitChar)

	chunks := s.SplitText(text)
	if len(chunks) != 10 {
		t.Fatalf("expected 10 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.CharStart != i*3 || c.CharEnd != i*3+3 {
			t.Fatalf("chunk %d span = [%d,%d), want [%d,%d)", i, c.CharStart, c.CharEnd, i*3, i*3+3)
		}
	}
}

func TestSplitCharsOverlapAdvancesMonotonically(t *testing.T) {
	text := strings.Repeat("x", 20)
	s := NewSplitter(10, 5, UnitChar)

	chunks := s.SplitText(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	wantStarts := []int{0, 5, 10}
	for i, c := range chunks {
		if c.CharStart != wantStarts[i] {
			t.Fatalf("chunk %d start = %d, want %d", i, c.CharStart, wantStarts[i])
		}
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].CharStart <= chunks[i-1].CharStart {
			t.Fatalf("window start must strictly advance: %d then %d", chunks[i-1].CharStart, chunks[i].CharStart)
		}
	}
}

func TestSplitCharsSnapsToSentenceBreak(t *testing.T) {
	text := "First sentence. Second sentence here."
	s := NewSplitter(25, 0, UnitChar)

	chunks := s.SplitText(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != "First sentence." {
		t.Fatalf("expected snap at sentence end, got %q", chunks[0].Content)
	}
	if chunks[1].Content != "Second sentence here." {
		t.Fatalf("unexpected second chunk %q", chunks[1].Content)
	}
}

func TestSplitCharsIgnoresBreakBeforeMidpoint(t *testing.T) {
	// The only sentence break sits in the first half of the window, so the
	// window must not shrink below half size.
	text := "Ab. " + strings.Repeat("c", 30)
	s := NewSplitter(20, 0, UnitChar)

	chunks := s.SplitText(text)
	if chunks[0].CharEnd != 20 {
		t.Fatalf("expected full window despite early break, got end=%d", chunks[0].CharEnd)
	}
}

func TestSplitTokensExactWindowsWithoutBreaks(t *testing.T) {
	// Four 2-rune words are four estimator tokens; window 2 with no
	// overlap must yield exactly 2 chunks.
	text := "aa bb cc dd"
	s := NewSplitter(2, 0, UnitToken)

	chunks := s.SplitText(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != "aa bb" || chunks[1].Content != "cc dd" {
		t.Fatalf("unexpected contents %q / %q", chunks[0].Content, chunks[1].Content)
	}
	if chunks[0].TokenCount != 2 || chunks[1].TokenCount != 2 {
		t.Fatalf("expected token counts 2/2, got %d/%d", chunks[0].TokenCount, chunks[1].TokenCount)
	}
}

func TestSplitTokensTerminatesOnPathologicalInput(t *testing.T) {
	// One giant break-free word; every window is forced to advance anyway.
	text := strings.Repeat("z", 400)
	s := NewSplitter(10, 9, UnitToken)

	chunks := s.SplitText(text)
	if len(chunks) == 0 {
		t.Fatalf("expected chunks for non-empty input")
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].CharStart <= chunks[i-1].CharStart {
			t.Fatalf("chunk %d does not advance: %d then %d", i, chunks[i-1].CharStart, chunks[i].CharStart)
		}
	}
}

func TestSplitPagesContentMatchesSpans(t *testing.T) {
	pages := []domain.PageText{
		{Page: 1, Text: "Alpha beta gamma delta. Epsilon zeta."},
		{Page: 2, Text: "Eta theta iota kappa. Lambda mu."},
	}
	joined := pages[0].Text + "\n\n" + pages[1].Text
	runes := []rune(joined)

	s := NewSplitter(8, 2, UnitToken)
	chunks := s.SplitPages(pages)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		want := strings.TrimSpace(string(runes[c.CharStart:c.CharEnd]))
		if c.Content != want {
			t.Fatalf("chunk %d content %q does not match span [%d,%d) %q", i, c.Content, c.CharStart, c.CharEnd, want)
		}
		if c.PageStart < 1 || c.PageEnd > 2 || c.PageStart > c.PageEnd {
			t.Fatalf("chunk %d has invalid page range %d-%d", i, c.PageStart, c.PageEnd)
		}
	}
}

func TestSplitPagesSkipsBlankPages(t *testing.T) {
	pages := []domain.PageText{
		{Page: 1, Text: "   \n  "},
		{Page: 2, Text: "Only page two has content."},
		{Page: 3, Text: ""},
	}
	s := NewSplitter(1000, 0, UnitToken)

	chunks := s.SplitPages(pages)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].PageStart != 2 || chunks[0].PageEnd != 2 {
		t.Fatalf("expected attribution to page 2, got %d-%d", chunks[0].PageStart, chunks[0].PageEnd)
	}
}

func TestSplitPagesSinglePage(t *testing.T) {
	s := NewSplitter(1000, 0, UnitToken)
	chunks := s.SplitText("A short single-page note.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].PageStart != 1 || chunks[0].PageEnd != 1 {
		t.Fatalf("expected page 1-1, got %d-%d", chunks[0].PageStart, chunks[0].PageEnd)
	}
}

func TestSplitPagesEmptyInput(t *testing.T) {
	s := NewSplitter(0, -1, UnitToken)
	if got := s.SplitPages(nil); got != nil {
		t.Fatalf("expected nil for nil input, got %v", got)
	}
	if got := s.SplitPages([]domain.PageText{{Page: 1, Text: "   "}}); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
}

func TestSplitPagesAttributionAgreesAcrossUnits(t *testing.T) {
	pages := []domain.PageText{
		{Page: 1, Text: "Cells are small. Cells divide often."},
		{Page: 2, Text: "Roots absorb water. Leaves make food."},
		{Page: 3, Text: "Stems move nutrients. Flowers make seeds."},
	}

	// Rebuild the page table independently: pages joined with "\n\n", each
	// range excluding the joiner.
	type pageRange struct{ page, start, end int }
	var ranges []pageRange
	offset := 0
	for _, p := range pages {
		n := len([]rune(p.Text))
		ranges = append(ranges, pageRange{p.Page, offset, offset + n})
		offset += n + 2
	}
	wantPages := func(charStart, charEnd int) (int, int) {
		first, last := 0, 0
		for _, r := range ranges {
			if charEnd <= r.start || charStart >= r.end {
				continue
			}
			if first == 0 {
				first = r.page
			}
			last = r.page
		}
		return first, last
	}

	for _, tc := range []struct {
		name string
		s    *Splitter
	}{
		{"char", NewSplitter(40, 10, UnitChar)},
		{"token", NewSplitter(12, 3, UnitToken)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			chunks := tc.s.SplitPages(pages)
			if len(chunks) < 2 {
				t.Fatalf("expected multiple chunks, got %d", len(chunks))
			}
			covered := map[int]bool{}
			for i, c := range chunks {
				wantStart, wantEnd := wantPages(c.CharStart, c.CharEnd)
				if wantStart == 0 {
					t.Fatalf("chunk %d span [%d,%d) overlaps no page", i, c.CharStart, c.CharEnd)
				}
				if c.PageStart != wantStart || c.PageEnd != wantEnd {
					t.Fatalf("chunk %d attributed to pages %d-%d, span [%d,%d) overlaps %d-%d",
						i, c.PageStart, c.PageEnd, c.CharStart, c.CharEnd, wantStart, wantEnd)
				}
				for p := c.PageStart; p <= c.PageEnd; p++ {
					covered[p] = true
				}
			}
			for _, p := range pages {
				if !covered[p.Page] {
					t.Fatalf("page %d never attributed to any chunk", p.Page)
				}
			}
		})
	}
}

func TestSplitPagesDeterministic(t *testing.T) {
	pages := []domain.PageText{
		{Page: 1, Text: "Determinism matters. Chunk spans must be stable across runs."},
		{Page: 2, Text: "Otherwise reprocessing would churn stored vectors."},
	}
	s := NewSplitter(6, 2, UnitToken)

	first := s.SplitPages(pages)
	second := s.SplitPages(pages)
	if len(first) != len(second) {
		t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Content != second[i].Content || first[i].CharStart != second[i].CharStart || first[i].CharEnd != second[i].CharEnd {
			t.Fatalf("chunk %d differs across runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestNewSplitterNormalizesOverlap(t *testing.T) {
	s := NewSplitter(100, 100, UnitToken)
	if s.overlap != 25 {
		t.Fatalf("overlap >= window must shrink to a quarter, got %d", s.overlap)
	}
}

func TestEstimatorSpansCoverWordsOnly(t *testing.T) {
	spans := heuristicEstimator{}.Spans("hello   worldwide")
	// "hello" is 5 runes -> 2 pieces; "worldwide" is 9 runes -> 3 pieces.
	if len(spans) != 5 {
		t.Fatalf("expected 5 spans, got %d", len(spans))
	}
	for i := 1; i < len(spans); i++ {
		if spans[i].Start < spans[i-1].End {
			t.Fatalf("spans overlap: %+v then %+v", spans[i-1], spans[i])
		}
	}
	if spans[0].Start != 0 || spans[len(spans)-1].End != len([]rune("hello   worldwide")) {
		t.Fatalf("spans do not cover word extremes: %+v", spans)
	}
}
