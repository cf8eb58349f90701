package duckduckgo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tutorbase/internal/core/domain"
	"tutorbase/internal/infrastructure/resilience"
)

// Client queries the DuckDuckGo instant answer API for supplemental,
// non-authoritative context. Results carry no similarity scores.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string) *Client {
	return NewWithOptions(baseURL, Options{})
}

func NewWithOptions(baseURL string, options Options) *Client {
	if baseURL == "" {
		baseURL = "https://api.duckduckgo.com"
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type relatedTopic struct {
	Text     string         `json:"Text"`
	FirstURL string         `json:"FirstURL"`
	Topics   []relatedTopic `json:"Topics"`
}

type instantAnswer struct {
	Heading       string         `json:"Heading"`
	AbstractText  string         `json:"AbstractText"`
	AbstractURL   string         `json:"AbstractURL"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.SupplementalResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	var answer instantAnswer
	call := func(callCtx context.Context) error {
		return c.fetch(callCtx, query, &answer)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "duckduckgo.search", call, classifySearchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	return flatten(answer, maxResults), nil
}

func (c *Client) fetch(ctx context.Context, query string, out *instantAnswer) error {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("duckduckgo search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("duckduckgo search status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

func flatten(answer instantAnswer, maxResults int) []domain.SupplementalResult {
	out := make([]domain.SupplementalResult, 0, maxResults)

	if answer.AbstractText != "" && answer.AbstractURL != "" {
		out = append(out, domain.SupplementalResult{
			Title:   answer.Heading,
			URL:     answer.AbstractURL,
			Snippet: answer.AbstractText,
		})
	}

	var walk func(topics []relatedTopic)
	walk = func(topics []relatedTopic) {
		for _, topic := range topics {
			if len(out) >= maxResults {
				return
			}
			if len(topic.Topics) > 0 {
				walk(topic.Topics)
				continue
			}
			if topic.FirstURL == "" || topic.Text == "" {
				continue
			}
			out = append(out, domain.SupplementalResult{
				Title:   titleFrom(topic.Text),
				URL:     topic.FirstURL,
				Snippet: topic.Text,
			})
		}
	}
	walk(answer.RelatedTopics)

	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// titleFrom takes the leading clause of a topic text as a display title.
func titleFrom(text string) string {
	if idx := strings.Index(text, " - "); idx > 0 {
		return text[:idx]
	}
	if idx := strings.Index(text, ". "); idx > 0 {
		return text[:idx]
	}
	return text
}
