package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/sciencesync/internal/normalize"
)

// DefaultCrossRefURL is the public CrossRef REST API.
const DefaultCrossRefURL = "https://api.crossref.org"

// ErrNoMatch is returned when CrossRef has no work whose title matches the query.
var ErrNoMatch = errors.New("no matching work")

// Work is the part of a CrossRef work record used for enrichment.
type Work struct {
	Title      string   `json:"title"`
	DOI        string   `json:"doi"`
	References []string `json:"references,omitempty"`
}

// CrossRefClient looks up works by bibliographic title.
type CrossRefClient struct {
	baseURL string
	mailto  string
	client  *http.Client
}

// NewCrossRefClient creates a client. An empty baseURL uses DefaultCrossRefURL.
func NewCrossRefClient(baseURL, mailto string, timeout time.Duration) *CrossRefClient {
	if baseURL == "" {
		baseURL = DefaultCrossRefURL
	}
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &CrossRefClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		mailto:  mailto,
		client:  &http.Client{Timeout: timeout},
	}
}

type crossrefResponse struct {
	Message struct {
		Items []struct {
			Title     []string `json:"title"`
			DOI       string   `json:"DOI"`
			Reference []struct {
				DOI string `json:"DOI"`
			} `json:"reference"`
		} `json:"items"`
	} `json:"message"`
}

// Lookup returns the best CrossRef match for title. The top hit is accepted only when its
// normalized title equals the query's.
func (c *CrossRefClient) Lookup(ctx context.Context, title string) (Work, error) {
	q := url.Values{
		"query.bibliographic": {title},
		"select":              {"title,reference,DOI"},
		"rows":                {"1"},
	}
	if c.mailto != "" {
		q.Set("mailto", c.mailto)
	}
	reqURL := c.baseURL + "/works?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Work{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.mailto != "" {
		req.Header.Set("User-Agent", "sciencesync/1.0 (mailto:"+c.mailto+")")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Work{}, fmt.Errorf("crossref request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Work{}, fmt.Errorf("crossref status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Work{}, fmt.Errorf("decoding crossref response: %w", err)
	}
	if len(parsed.Message.Items) == 0 {
		return Work{}, ErrNoMatch
	}

	item := parsed.Message.Items[0]
	w := Work{DOI: strings.ToLower(item.DOI)}
	if len(item.Title) > 0 {
		w.Title = item.Title[0]
	}
	if normalize.Key(w.Title) != normalize.Key(title) {
		return Work{}, ErrNoMatch
	}
	for _, ref := range item.Reference {
		if ref.DOI != "" {
			w.References = append(w.References, strings.ToLower(ref.DOI))
		}
	}
	return w, nil
}
