package chunking

import "unicode"

// Span is a token's rune-offset range in the source text.
type Span struct {
	Start int
	End   int
}

// TokenEstimator provides approximate, position-aware tokenization. Counts
// are estimator-defined; no provider tokenizer is reproduced.
type TokenEstimator interface {
	Spans(text string) []Span
	Count(text string) int
}

// heuristicEstimator splits words into pieces of at most four runes,
// approximating the common ~4 characters per token rule. Deterministic, so
// chunk boundaries are reproducible across runs.
type heuristicEstimator struct{}

const maxPieceRunes = 4

func (heuristicEstimator) Spans(text string) []Span {
	runes := []rune(text)
	spans := make([]Span, 0, len(runes)/maxPieceRunes+1)

	i := 0
	for i < len(runes) {
		if unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		wordEnd := i
		for wordEnd < len(runes) && !unicode.IsSpace(runes[wordEnd]) {
			wordEnd++
		}
		for pieceStart := i; pieceStart < wordEnd; pieceStart += maxPieceRunes {
			pieceEnd := pieceStart + maxPieceRunes
			if pieceEnd > wordEnd {
				pieceEnd = wordEnd
			}
			spans = append(spans, Span{Start: pieceStart, End: pieceEnd})
		}
		i = wordEnd
	}
	return spans
}

func (e heuristicEstimator) Count(text string) int {
	return len(e.Spans(text))
}
