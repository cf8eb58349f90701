package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"tutorbase/internal/core/domain"
	"tutorbase/internal/core/ports"
)

// SynthesizerConfig tunes answer generation.
type SynthesizerConfig struct {
	Temperature float64
	MaxTokens   int
	// SnippetRunes caps citation snippet length.
	SnippetRunes int
}

func (c SynthesizerConfig) normalize() SynthesizerConfig {
	out := c
	if out.Temperature <= 0 {
		out.Temperature = 0.7
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 2000
	}
	if out.SnippetRunes <= 0 {
		out.SnippetRunes = 200
	}
	return out
}

// Synthesizer builds a numbered grounding prompt from retrieved chunks and
// supplemental web results, generates an answer, and resolves the bracketed
// markers the model emitted back to real sources. Markers pointing outside
// the source list are dropped; a citation always refers to context that was
// actually in the prompt.
type Synthesizer struct {
	generator ports.AnswerGenerator
	cfg       SynthesizerConfig
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

func NewSynthesizer(generator ports.AnswerGenerator, cfg SynthesizerConfig) *Synthesizer {
	return &Synthesizer{generator: generator, cfg: cfg.normalize()}
}

func (s *Synthesizer) Synthesize(
	ctx context.Context,
	question string,
	retrieval domain.RetrievalResult,
	supplemental []domain.SupplementalResult,
) (*domain.Answer, error) {
	if len(retrieval.Chunks) == 0 && len(supplemental) == 0 {
		return nil, domain.WrapError(domain.ErrSynthesisSkipped, "synthesize answer", fmt.Errorf("no sources to ground on"))
	}

	prompt := s.buildPrompt(question, retrieval.Chunks, supplemental)

	text, err := s.generator.Complete(ctx, prompt, s.cfg.Temperature, s.cfg.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	citations := s.resolveCitations(text, retrieval, supplemental)

	return &domain.Answer{
		Text:            text,
		Citations:       citations,
		ChunksRetrieved: len(retrieval.Chunks),
		Tier:            retrieval.Tier,
	}, nil
}

// buildPrompt numbers knowledge-base chunks first, then web results in the
// same continuing index space, so one marker namespace covers both.
func (s *Synthesizer) buildPrompt(
	question string,
	chunks []domain.ScoredChunk,
	supplemental []domain.SupplementalResult,
) string {
	var sb strings.Builder
	sb.WriteString("Use only the following sources to answer the question. Cite sources with bracketed numbers like [1].\n\nSources:\n")

	index := 1
	for _, sc := range chunks {
		filename := sc.Filename
		if filename == "" {
			filename = "document"
		}
		fmt.Fprintf(&sb, "[%d] Pages %d-%d (Source: %s)\n%s\n\n",
			index, sc.Chunk.PageStart, sc.Chunk.PageEnd, filename, sc.Chunk.Content)
		index++
	}
	for _, sr := range supplemental {
		fmt.Fprintf(&sb, "[%d] Web: %s (%s)\n%s\n\n", index, sr.Title, sr.URL, sr.Snippet)
		index++
	}

	fmt.Fprintf(&sb, "Question: %s\n\n", question)
	sb.WriteString(`Instructions:
- Answer using ONLY the information in the sources above
- Cite sources with bracketed numbers like [1] when referencing information
- If the answer cannot be found in the sources, say "I cannot find the answer in the provided sources"
- Be concise but complete
- Include page numbers when relevant

Answer:`)
	return sb.String()
}

// resolveCitations extracts the distinct bracketed numbers from the answer
// and maps each valid 1-based index to its source. Out-of-range markers are
// discarded silently.
func (s *Synthesizer) resolveCitations(
	text string,
	retrieval domain.RetrievalResult,
	supplemental []domain.SupplementalResult,
) []domain.Citation {
	total := len(retrieval.Chunks) + len(supplemental)

	seen := make(map[int]bool)
	indices := make([]int, 0, 4)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > total || seen[n] {
			continue
		}
		seen[n] = true
		indices = append(indices, n)
	}
	sort.Ints(indices)

	citations := make([]domain.Citation, 0, len(indices))
	for _, n := range indices {
		if n <= len(retrieval.Chunks) {
			sc := retrieval.Chunks[n-1]
			c := domain.Citation{
				Index:      n,
				DocumentID: sc.Chunk.DocumentID,
				Filename:   sc.Filename,
				PageStart:  sc.Chunk.PageStart,
				PageEnd:    sc.Chunk.PageEnd,
				Snippet:    s.snippet(sc.Chunk.Content),
			}
			if !retrieval.Synthetic {
				score := sc.Score
				c.Similarity = &score
			}
			citations = append(citations, c)
			continue
		}
		sr := supplemental[n-1-len(retrieval.Chunks)]
		citations = append(citations, domain.Citation{
			Index:   n,
			Title:   sr.Title,
			URL:     sr.URL,
			Snippet: s.snippet(sr.Snippet),
		})
	}
	return citations
}

func (s *Synthesizer) snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= s.cfg.SnippetRunes {
		return text
	}
	return string(runes[:s.cfg.SnippetRunes]) + "..."
}
