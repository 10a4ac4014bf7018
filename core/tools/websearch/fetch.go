package websearch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultMaxFetchBytes = 1 * 1024 * 1024
	defaultFetchTimeout  = 30 * time.Second
	maxRedirects         = 5
)

var (
	ErrContentTooLarge    = errors.New("content too large")
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// Page is the readable text of one fetched URL.
type Page struct {
	URL  string
	Text string
}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	client       *http.Client
	cache        *Cache
	maxBytes     int64
	allowPrivate bool
}

type FetcherOption func(*Fetcher)

func WithFetchCache(cache *Cache) FetcherOption {
	return func(f *Fetcher) {
		f.cache = cache
	}
}

func WithMaxFetchBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// AllowPrivateAddresses disables the private address guard. Only meant for
// local setups and tests.
func AllowPrivateAddresses() FetcherOption {
	return func(f *Fetcher) {
		f.allowPrivate = true
	}
}

func NewFetcher(opts ...FetcherOption) *Fetcher {
	fetcher := &Fetcher{maxBytes: defaultMaxFetchBytes}
	for _, opt := range opts {
		opt(fetcher)
	}
	if fetcher.cache == nil {
		fetcher.cache = NewCache(defaultCacheSize)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !fetcher.allowPrivate {
		transport.DialContext = guardedDialer().DialContext
	}
	fetcher.client = &http.Client{
		Timeout: defaultFetchTimeout,
		Transport: otelhttp.NewTransport(transport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "fetch " + r.URL.Host
			})),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			_, err := validateURL(req.URL.String())
			return err
		},
	}
	return fetcher
}

// Fetch downloads target and returns its readable text.
func (f *Fetcher) Fetch(ctx context.Context, target string) (Page, error) {
	ctx, span := tracer.Start(ctx, "fetch page")
	defer span.End()
	span.SetAttributes(attribute.String("fetch.url", target))

	page, err := f.fetch(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Page{}, err
	}
	span.SetAttributes(attribute.Int("fetch.text_bytes", len(page.Text)))
	return page, nil
}

func (f *Fetcher) fetch(ctx context.Context, target string) (Page, error) {
	parsed, err := validateURL(target)
	if err != nil {
		return Page{}, err
	}

	key := cacheKey("fetch", parsed.String())
	if cached, ok := f.cache.Get(key); ok {
		return cached.(Page), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to create fetch request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrPrivateAddress) {
			return Page{}, ErrPrivateAddress
		}
		return Page{}, fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" && mediaType != "application/xhtml+xml" && mediaType != "text/plain" {
		return Page{}, fmt.Errorf("%w: %q", ErrUnsupportedContent, mediaType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Page{}, fmt.Errorf("failed to read page: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return Page{}, fmt.Errorf("%w: more than %d bytes", ErrContentTooLarge, f.maxBytes)
	}

	page := Page{URL: resp.Request.URL.String()}
	if mediaType == "text/plain" {
		page.Text = strings.TrimSpace(string(body))
	} else {
		article, err := readability.FromReader(bytes.NewReader(body), resp.Request.URL)
		if err != nil {
			return Page{}, fmt.Errorf("failed to extract page content: %w", err)
		}
		page.Text = collapseBlankLines(article.TextContent)
	}

	f.cache.Set(key, page, defaultFetchCacheTTL)
	return page, nil
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(kept) > 0 {
				kept = append(kept, "")
			}
			blank = true
			continue
		}
		kept = append(kept, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
