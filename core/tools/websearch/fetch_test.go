package websearch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Gophers</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>All about gophers</h1>
<p>Gophers are small burrowing rodents that live across North America. They spend most of their lives underground, digging extensive tunnel systems that can stretch for hundreds of feet.</p>
<p>The Go programming language adopted the gopher as its mascot. The mascot was drawn by Renee French and has since appeared on countless stickers, plush toys and conference badges around the world.</p>
<p>Unlike their namesake, Go gophers are known for concurrency. They communicate by sharing memory through channels rather than sharing channels through memory, which keeps programs easy to reason about.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestFetcherExtractsReadableText(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	fetcher := NewFetcher(AllowPrivateAddresses())
	page, err := fetcher.Fetch(context.Background(), server.URL+"/gophers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(page.Text, "burrowing rodents") {
		t.Fatalf("expected article text, got %q", page.Text)
	}

	if _, err := fetcher.Fetch(context.Background(), server.URL+"/gophers"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected cached fetch, got %d requests", hits.Load())
	}
}

func TestFetcherRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/image":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		case "/large":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("a", 64)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	testCases := []struct {
		name    string
		fetcher *Fetcher
		url     string
		wantErr error
		wantMsg string
	}{
		{name: "private address", fetcher: NewFetcher(), url: server.URL + "/large", wantMsg: "private address"},
		{name: "scheme", fetcher: NewFetcher(), url: "file:///etc/passwd", wantErr: ErrInvalidURL},
		{name: "missing host", fetcher: NewFetcher(), url: "http:///path", wantErr: ErrInvalidURL},
		{name: "content type", fetcher: NewFetcher(AllowPrivateAddresses()), url: server.URL + "/image", wantErr: ErrUnsupportedContent},
		{name: "size limit", fetcher: NewFetcher(AllowPrivateAddresses(), WithMaxFetchBytes(16)), url: server.URL + "/large", wantErr: ErrContentTooLarge},
		{name: "status", fetcher: NewFetcher(AllowPrivateAddresses()), url: server.URL + "/missing", wantMsg: "status 404"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := testCase.fetcher.Fetch(context.Background(), testCase.url)
			if err == nil {
				t.Fatalf("expected error")
			}
			if testCase.wantErr != nil && !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
			if testCase.wantMsg != "" && !strings.Contains(err.Error(), testCase.wantMsg) {
				t.Fatalf("expected %q in %v", testCase.wantMsg, err)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	testCases := []struct {
		name string
		ip   string
		want bool
	}{
		{name: "loopback", ip: "127.0.0.1", want: true},
		{name: "rfc1918", ip: "192.168.1.10", want: true},
		{name: "link local", ip: "169.254.169.254", want: true},
		{name: "ipv6 loopback", ip: "::1", want: true},
		{name: "public", ip: "8.8.8.8"},
		{name: "public ipv6", ip: "2001:4860:4860::8888"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := isPrivateIP(parseIP(t, testCase.ip)); got != testCase.want {
				t.Fatalf("expected %v, got %v", testCase.want, got)
			}
		})
	}
}

func parseIP(t *testing.T, raw string) net.IP {
	t.Helper()
	ip := net.ParseIP(raw)
	if ip == nil {
		t.Fatalf("invalid ip %q", raw)
	}
	return ip
}
