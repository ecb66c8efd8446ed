package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const (
	minSnippetLen = 100
	maxSnippetLen = 500
	maxPageBytes  = 5 << 20
)

// SnippetFetcher fetches a record's landing page and keeps the lead of its readable text.
// After an HTTP error from a host, further pages from that host are skipped.
type SnippetFetcher struct {
	client *http.Client

	mu            sync.Mutex
	failedDomains map[string]struct{}
}

// NewSnippetFetcher creates a fetcher with the given request timeout.
func NewSnippetFetcher(timeout time.Duration) *SnippetFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &SnippetFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		failedDomains: make(map[string]struct{}),
	}
}

// Fetch returns the snippet for pageURL, or "" when the page has no usable text.
func (f *SnippetFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid page URL %q", pageURL)
	}
	domain := strings.ToLower(u.Host)
	if f.domainFailed(domain) {
		return "", fmt.Errorf("skipping %s after earlier failure", domain)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "sciencesync/1.0 (citation alert digest)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		f.markFailed(domain)
		return "", fmt.Errorf("fetching %s: %s", pageURL, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	page, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return "", nil
	}
	text := strings.Join(strings.Fields(page.TextContent), " ")
	if len(text) < minSnippetLen {
		return "", nil
	}
	return truncate(text, maxSnippetLen), nil
}

func (f *SnippetFetcher) domainFailed(domain string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, failed := f.failedDomains[domain]
	return failed
}

func (f *SnippetFetcher) markFailed(domain string) {
	f.mu.Lock()
	f.failedDomains[domain] = struct{}{}
	f.mu.Unlock()
}

// truncate cuts text to at most n runes on a word boundary.
func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
