package websearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/tools"
)

const (
	// pageExcerptBytes bounds the text taken from each fetched search result
	// so several pages fit in one tool output.
	pageExcerptBytes = 8 * 1024
)

type searchParameters struct {
	Query string `json:"query" jsonschema:"description=The search query"`
	Count int    `json:"count,omitempty" jsonschema:"description=Number of results to return,minimum=1,maximum=20"`
}

type fetchParameters struct {
	URL string `json:"url" jsonschema:"description=The http or https URL to read"`
}

type searchTool struct {
	searcher   *Searcher
	fetcher    *Fetcher
	fetchPages int
}

type SearchToolOption func(*searchTool)

// WithPageFetching reads the top n results with fetcher and includes their
// text in the tool output.
func WithPageFetching(fetcher *Fetcher, n int) SearchToolOption {
	return func(t *searchTool) {
		t.fetcher = fetcher
		t.fetchPages = n
	}
}

// NewSearchTool returns the web_search tool. Results are reported as sources
// so the model can cite them by index.
func NewSearchTool(searcher *Searcher, opts ...SearchToolOption) tools.Tool {
	t := &searchTool{searcher: searcher}
	for _, opt := range opts {
		opt(t)
	}
	return tools.NewRichFunctionTool("web_search",
		"Search the web. Returns numbered sources; cite them as [n].",
		t.run)
}

func (t *searchTool) run(ctx context.Context, parameters searchParameters) (tools.Output, error) {
	results, err := t.searcher.Search(ctx, parameters.Query, parameters.Count)
	if err != nil {
		return tools.Output{}, err
	}
	if len(results) == 0 {
		return tools.Output{Text: fmt.Sprintf("No results found for %q.", parameters.Query)}, nil
	}

	sources := make([]conversations.Source, 0, len(results))
	for _, result := range results {
		sources = append(sources, result.Source())
	}

	var excerpts []string
	if t.fetcher != nil {
		for i, result := range results[:min(t.fetchPages, len(results))] {
			page, err := t.fetcher.Fetch(ctx, result.URL)
			if err != nil {
				logger.Debug("skipping unreadable search result", "url", result.URL, "error", err)
				continue
			}
			text, _ := tools.Truncate(page.Text, pageExcerptBytes)
			excerpts = append(excerpts, fmt.Sprintf("[%d] %s\n%s", i+1, result.Title, text))
		}
	}

	return tools.Output{Text: strings.Join(excerpts, "\n\n"), Sources: sources}, nil
}

// NewFetchTool returns the fetch_url tool.
func NewFetchTool(fetcher *Fetcher) tools.Tool {
	return tools.NewRichFunctionTool("fetch_url",
		"Read the main text of a web page.",
		func(ctx context.Context, parameters fetchParameters) (tools.Output, error) {
			page, err := fetcher.Fetch(ctx, parameters.URL)
			if err != nil {
				return tools.Output{}, err
			}
			return tools.Output{
				Text:    page.Text,
				Sources: []conversations.Source{{Title: page.URL, URL: page.URL}},
			}, nil
		})
}
