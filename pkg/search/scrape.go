package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	"golang.org/x/net/html"
)

// ScrapeSearcher reads a DuckDuckGo HTML results page.
type ScrapeSearcher struct {
	endpoint   string
	userAgent  string
	maxResults int
	httpClient *http.Client
}

var _ contractx.Searcher = (*ScrapeSearcher)(nil)

func NewScrapeSearcher(cfg Config, opts ...Option) (*ScrapeSearcher, error) {
	endpoint := strings.TrimSpace(cfg.ScrapeURL)
	if endpoint == "" {
		endpoint = defaultScrapeURL
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, err
	}
	o := buildOptions(cfg.Timeout, opts)
	return &ScrapeSearcher{
		endpoint:   endpoint,
		userAgent:  userAgent(cfg),
		maxResults: clampResults(cfg.MaxResults),
		httpClient: o.httpClient,
	}, nil
}

func (s *ScrapeSearcher) Search(ctx context.Context, query string) ([]contractx.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", contractx.ErrSearchFailed)
	}

	form := url.Values{}
	form.Set("q", query)
	form.Set("kl", "br-pt")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.userAgent)

	body, err := doRequest(s.httpClient, req, 2<<20)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrSearchFailed, err)
	}

	results, err := ParseResultsPage(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrSearchFailed, err)
	}
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}
	return results, nil
}

// ParseResultsPage extracts result anchors (a.result__a) and the snippet that
// follows each of them.
func ParseResultsPage(page string) ([]contractx.SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	var (
		results []contractx.SearchResult
		walk    func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				results = append(results, contractx.SearchResult{
					Title: strings.TrimSpace(textContent(n)),
					Link:  resolveLink(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet") && len(results) > 0:
				last := &results[len(results)-1]
				if last.Snippet == "" {
					last.Snippet = strings.TrimSpace(textContent(n))
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	out := results[:0]
	for _, r := range results {
		if r.Link != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// resolveLink unwraps DuckDuckGo redirect links (/l/?uddg=...).
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
