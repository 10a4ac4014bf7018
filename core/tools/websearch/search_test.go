package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/koscakluka/ema-chat/core/tools"
)

const braveResponse = `{
  "query": {"original": "golang"},
  "web": {"results": [
    {"title": "The <strong>Go</strong> Programming Language", "url": "https://go.dev/", "description": "Build <strong>simple</strong> software."},
    {"title": "Go (programming language)", "url": "https://en.wikipedia.org/wiki/Go_(programming_language)", "description": "Go is a language."},
    {"title": "Tour", "url": "https://go.dev/tour", "description": "A tour of Go."}
  ]}
}`

const duckDuckGoResponse = `{
  "Heading": "Go",
  "AbstractText": "Go is a statically typed language.",
  "AbstractSource": "Wikipedia",
  "AbstractURL": "https://en.wikipedia.org/wiki/Go",
  "Results": [],
  "RelatedTopics": [
    {"Text": "Gopher - The Go mascot.", "FirstURL": "https://duckduckgo.com/Gopher"},
    {"Name": "Tools", "Topics": [
      {"Text": "gofmt - Formatter.", "FirstURL": "https://duckduckgo.com/gofmt"},
      {"Text": "", "FirstURL": "https://duckduckgo.com/empty"}
    ]}
  ]
}`

func TestSearcherBrave(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("X-Subscription-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("q") != "golang" || r.URL.Query().Get("count") != "2" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(braveResponse))
	}))
	defer server.Close()

	searcher := NewSearcher(WithProvider(ProviderBrave, "secret"), WithSearchURL(server.URL), WithMaxResults(5))

	results, err := searcher.Search(context.Background(), "golang", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "The Go Programming Language" || results[0].Snippet != "Build simple software." {
		t.Fatalf("expected markup stripped, got %+v", results[0])
	}

	if _, err := searcher.Search(context.Background(), "golang", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected repeat search served from cache, got %d requests", hits.Load())
	}
}

func TestSearcherBraveRequiresKey(t *testing.T) {
	searcher := NewSearcher(WithProvider(ProviderBrave, ""), WithSearchURL("http://127.0.0.1:0"))
	if _, err := searcher.Search(context.Background(), "golang", 1); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestSearcherDuckDuckGo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("expected json format, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(duckDuckGoResponse))
	}))
	defer server.Close()

	searcher := NewSearcher(WithProvider(ProviderDuckDuckGo, ""), WithSearchURL(server.URL))

	results, err := searcher.Search(context.Background(), "go", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Result{
		{Title: "Go", URL: "https://en.wikipedia.org/wiki/Go", Snippet: "Go is a statically typed language."},
		{Title: "Gopher", URL: "https://duckduckgo.com/Gopher", Snippet: "Gopher - The Go mascot."},
		{Title: "gofmt", URL: "https://duckduckgo.com/gofmt", Snippet: "gofmt - Formatter."},
	}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %+v", len(want), results)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("result %d: expected %+v, got %+v", i, want[i], results[i])
		}
	}
}

func TestSearcherUnsupportedProvider(t *testing.T) {
	searcher := NewSearcher(WithProvider("altavista", ""))
	if _, err := searcher.Search(context.Background(), "go", 1); err == nil || !strings.Contains(err.Error(), "altavista") {
		t.Fatalf("expected unsupported provider error, got %v", err)
	}
}

func TestSearchToolReportsSources(t *testing.T) {
	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(braveResponse))
	}))
	defer search.Close()

	tool := NewSearchTool(NewSearcher(WithProvider(ProviderBrave, "key"), WithSearchURL(search.URL)))
	coordinator := tools.NewCoordinator(nil)

	var written []conversations.Message
	writer := tools.HistoryWriterFunc(func(_ context.Context, message conversations.Message) error {
		written = append(written, message)
		return nil
	})
	call := llms.ToolCall{ID: "1", Name: "web_search", Arguments: `{"query":"golang","count":3}`}
	result := coordinator.Execute(context.Background(), tool, call, writer)

	if result.Status != conversations.ToolStatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.HasPrefix(result.Text, "[1] The Go Programming Language <https://go.dev/>") {
		t.Fatalf("expected indexed listing, got %q", result.Text)
	}
	if len(written) != 1 || written[0].Kind != conversations.KindSources || len(written[0].Sources) != 3 {
		t.Fatalf("expected one sources message, got %+v", written)
	}
}
