package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	"github.com/tidwall/gjson"
)

const (
	defaultGoogleURL = "https://www.googleapis.com/customsearch/v1"
	defaultScrapeURL = "https://html.duckduckgo.com/html/"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

type Config struct {
	GoogleAPIKey string        `envconfig:"GOOGLE_API_KEY" split_words:"true"`
	GoogleCX     string        `envconfig:"GOOGLE_CX" split_words:"true"`
	GoogleURL    string        `envconfig:"GOOGLE_URL" split_words:"true" default:"https://www.googleapis.com/customsearch/v1"`
	ScrapeURL    string        `envconfig:"SCRAPE_URL" split_words:"true" default:"https://html.duckduckgo.com/html/"`
	UserAgent    string        `envconfig:"USER_AGENT" split_words:"true"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	MaxPageBytes int64         `envconfig:"MAX_PAGE_BYTES" split_words:"true" default:"1048576"`
	MaxResults   int           `envconfig:"MAX_RESULTS" split_words:"true" default:"10"`
}

// Option customizes the HTTP collaborators.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func buildOptions(timeout time.Duration, opts []Option) options {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	o := options{httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// GoogleSearcher queries the Custom Search JSON API.
type GoogleSearcher struct {
	endpoint   string
	apiKey     string
	cx         string
	maxResults int
	httpClient *http.Client
}

var _ contractx.Searcher = (*GoogleSearcher)(nil)

func NewGoogleSearcher(cfg Config, opts ...Option) (*GoogleSearcher, error) {
	apiKey := strings.TrimSpace(cfg.GoogleAPIKey)
	cx := strings.TrimSpace(cfg.GoogleCX)
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("%w: google api key and cx are required", contractx.ErrNotConfigured)
	}
	endpoint := strings.TrimSpace(cfg.GoogleURL)
	if endpoint == "" {
		endpoint = defaultGoogleURL
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, err
	}
	o := buildOptions(cfg.Timeout, opts)
	return &GoogleSearcher{
		endpoint:   endpoint,
		apiKey:     apiKey,
		cx:         cx,
		maxResults: clampResults(cfg.MaxResults),
		httpClient: o.httpClient,
	}, nil
}

func (g *GoogleSearcher) Search(ctx context.Context, query string) ([]contractx.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", contractx.ErrSearchFailed)
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.cx)
	params.Set("q", query)
	params.Set("num", fmt.Sprint(g.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	body, err := doRequest(g.httpClient, req, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrSearchFailed, err)
	}

	parsed := gjson.ParseBytes(body)
	if msg := parsed.Get("error.message"); msg.Exists() {
		return nil, fmt.Errorf("%w: %s", contractx.ErrSearchFailed, msg.String())
	}

	var results []contractx.SearchResult
	parsed.Get("items").ForEach(func(_, item gjson.Result) bool {
		link := strings.TrimSpace(item.Get("link").String())
		if link == "" {
			return true
		}
		results = append(results, contractx.SearchResult{
			Title:   strings.TrimSpace(item.Get("title").String()),
			Link:    link,
			Snippet: strings.TrimSpace(item.Get("snippet").String()),
		})
		return len(results) < g.maxResults
	})
	return results, nil
}

// Fallback tries each searcher in order and returns the first non-empty result.
type Fallback []contractx.Searcher

var _ contractx.Searcher = Fallback(nil)

func (f Fallback) Search(ctx context.Context, query string) ([]contractx.SearchResult, error) {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		results, err := s.Search(ctx, query)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", contractx.ErrSearchFailed, errors.Join(errs...))
	}
	return nil, nil
}

// PageFetcher downloads raw HTML, capped at MaxPageBytes.
type PageFetcher struct {
	userAgent  string
	maxBytes   int64
	httpClient *http.Client
}

var _ contractx.PageFetcher = (*PageFetcher)(nil)

func NewPageFetcher(cfg Config, opts ...Option) *PageFetcher {
	maxBytes := cfg.MaxPageBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	o := buildOptions(cfg.Timeout, opts)
	return &PageFetcher{
		userAgent:  userAgent(cfg),
		maxBytes:   maxBytes,
		httpClient: o.httpClient,
	}
}

func (p *PageFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: unsupported url %q", contractx.ErrFetchFailed, rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	body, err := doRequest(p.httpClient, req, p.maxBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrFetchFailed, err)
	}
	return string(body), nil
}

func doRequest(client *http.Client, req *http.Request, limit int64) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func userAgent(cfg Config) string {
	if ua := strings.TrimSpace(cfg.UserAgent); ua != "" {
		return ua
	}
	return defaultUserAgent
}

func clampResults(n int) int {
	if n <= 0 || n > 10 {
		return 10
	}
	return n
}
