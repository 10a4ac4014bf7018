// Package websearch provides the web_search and fetch_url tools.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	ProviderBrave      = "brave"
	ProviderDuckDuckGo = "duckduckgo"

	braveSearchURL = "https://api.search.brave.com/res/v1/web/search"
	duckDuckGoURL  = "https://api.duckduckgo.com/"

	defaultMaxResults = 5
	maxResultsLimit   = 20
	searchTimeout     = 20 * time.Second
	userAgent         = "Mozilla/5.0 (compatible; ema-chat/1.0)"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

type Result struct {
	Title   string
	URL     string
	Snippet string
}

func (r Result) Source() conversations.Source {
	return conversations.Source{Title: r.Title, URL: r.URL, Snippet: r.Snippet}
}

// Searcher queries a search provider and caches the results.
type Searcher struct {
	provider   string
	apiKey     string
	baseURL    string
	maxResults int
	client     *http.Client
	cache      *Cache
}

type SearcherOption func(*Searcher)

// WithProvider selects "brave" (needs an API key) or "duckduckgo".
func WithProvider(provider string, apiKey string) SearcherOption {
	return func(s *Searcher) {
		s.provider = strings.ToLower(provider)
		s.apiKey = apiKey
	}
}

// WithSearchURL overrides the provider endpoint.
func WithSearchURL(baseURL string) SearcherOption {
	return func(s *Searcher) {
		s.baseURL = baseURL
	}
}

func WithMaxResults(n int) SearcherOption {
	return func(s *Searcher) {
		if n > 0 {
			s.maxResults = min(n, maxResultsLimit)
		}
	}
}

func WithSearchCache(cache *Cache) SearcherOption {
	return func(s *Searcher) {
		s.cache = cache
	}
}

func WithSearchHTTPClient(client *http.Client) SearcherOption {
	return func(s *Searcher) {
		s.client = client
	}
}

func NewSearcher(opts ...SearcherOption) *Searcher {
	searcher := &Searcher{
		provider:   ProviderDuckDuckGo,
		maxResults: defaultMaxResults,
		client: &http.Client{
			Timeout: searchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "web search " + r.URL.Host
				})),
		},
	}
	for _, opt := range opts {
		opt(searcher)
	}
	if searcher.cache == nil {
		searcher.cache = NewCache(defaultCacheSize)
	}
	return searcher
}

func (s *Searcher) Provider() string { return s.provider }

// Search returns up to count results for query; count <= 0 means the
// configured maximum.
func (s *Searcher) Search(ctx context.Context, query string, count int) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "web search")
	defer span.End()
	span.SetAttributes(attribute.String("search.provider", s.provider), attribute.String("search.query", query))

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty search query")
	}
	if count <= 0 || count > s.maxResults {
		count = s.maxResults
	}

	key := cacheKey("search", s.provider, query, strconv.Itoa(count))
	if cached, ok := s.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("search.cached", true))
		return cached.([]Result), nil
	}

	var (
		results []Result
		err     error
	)
	switch s.provider {
	case ProviderBrave:
		results, err = s.searchBrave(ctx, query, count)
	case ProviderDuckDuckGo, "ddg":
		results, err = s.searchDuckDuckGo(ctx, query, count)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedProvider, s.provider)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("search.results", len(results)))
	s.cache.Set(key, results, defaultSearchCacheTTL)
	return results, nil
}

func (s *Searcher) endpoint(fallback string) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	return fallback
}

func (s *Searcher) searchBrave(ctx context.Context, query string, count int) ([]Result, error) {
	if s.apiKey == "" {
		return nil, errors.New("brave search requires an API key")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	body, err := s.get(ctx, s.endpoint(braveSearchURL)+"?"+params.Encode(), map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": s.apiKey,
	})
	if err != nil {
		return nil, err
	}

	results := []Result{}
	gjson.GetBytes(body, "web.results").ForEach(func(_, item gjson.Result) bool {
		results = append(results, Result{
			Title:   stripTags(item.Get("title").String()),
			URL:     item.Get("url").String(),
			Snippet: stripTags(item.Get("description").String()),
		})
		return len(results) < count
	})
	return results, nil
}

func (s *Searcher) searchDuckDuckGo(ctx context.Context, query string, count int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")
	body, err := s.get(ctx, s.endpoint(duckDuckGoURL)+"?"+params.Encode(), map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("duckduckgo returned a non-JSON response")
	}

	document := gjson.ParseBytes(body)
	results := []Result{}
	if abstractURL := document.Get("AbstractURL").String(); abstractURL != "" && document.Get("AbstractText").String() != "" {
		title := document.Get("Heading").String()
		if title == "" {
			title = document.Get("AbstractSource").String()
		}
		results = append(results, Result{Title: title, URL: abstractURL, Snippet: document.Get("AbstractText").String()})
	}

	var collect func(topic gjson.Result) bool
	collect = func(topic gjson.Result) bool {
		if nested := topic.Get("Topics"); nested.Exists() {
			nested.ForEach(func(_, inner gjson.Result) bool { return collect(inner) })
			return len(results) < count
		}
		text, firstURL := topic.Get("Text").String(), topic.Get("FirstURL").String()
		if text == "" || firstURL == "" {
			return true
		}
		title := text
		if i := strings.Index(title, " - "); i >= 0 {
			title = title[:i]
		}
		results = append(results, Result{Title: strings.TrimSpace(title), URL: firstURL, Snippet: text})
		return len(results) < count
	}
	document.Get("Results").ForEach(func(_, topic gjson.Result) bool { return collect(topic) })
	if len(results) < count {
		document.Get("RelatedTopics").ForEach(func(_, topic gjson.Result) bool { return collect(topic) })
	}

	if len(results) > count {
		results = results[:count]
	}
	return results, nil
}

func (s *Searcher) get(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// stripTags removes the emphasis markup search APIs put around matches.
func stripTags(text string) string {
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
