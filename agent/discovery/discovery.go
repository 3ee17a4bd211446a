// Package discovery finds restaurants that deliver a dish to an address and
// can be reached on the messaging channel.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	promptx "github.com/tanpawarit/chative-order-relay/agent/prompt"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
	logx "github.com/tanpawarit/chative-order-relay/pkg/logger"
	retryx "github.com/tanpawarit/chative-order-relay/pkg/retry"
)

type Config struct {
	DefaultCity      string        `split_words:"true" default:"Rio de Janeiro"`
	ChannelKeyword   string        `split_words:"true" default:"whatsapp"`
	MaxResults       int           `split_words:"true" default:"10"`
	MaxCandidates    int           `split_words:"true" default:"3"`
	FetchConcurrency int           `split_words:"true" default:"4"`
	Timeout          time.Duration `split_words:"true" default:"90s"`
	SearchRPS        float64       `envconfig:"SEARCH_RPS" default:"1"`

	SearchRetry   retryx.Policy `split_words:"true"`
	FetchRetry    retryx.Policy `split_words:"true"`
	GenerateRetry retryx.Policy `split_words:"true"`
}

func (c Config) withDefaults() Config {
	if c.MaxResults <= 0 || c.MaxResults > 10 {
		c.MaxResults = 10
	}
	if c.MaxCandidates <= 0 || c.MaxCandidates > 3 {
		c.MaxCandidates = 3
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	if strings.TrimSpace(c.ChannelKeyword) == "" {
		c.ChannelKeyword = "whatsapp"
	}
	if c.SearchRetry.Limiter == nil {
		c.SearchRetry = c.SearchRetry.WithLimit(c.SearchRPS, 1)
	}
	return c
}

// Result is the outcome of one discovery run.
type Result struct {
	Candidates []statex.Candidate
	Provenance statex.Provenance
	Query      string
}

// Service runs discovery. Any collaborator may be nil; the matching step is
// then skipped and the run degrades toward the fallback list.
type Service struct {
	gen      contractx.TextGenerator
	searcher contractx.Searcher
	fetcher  contractx.PageFetcher
	prompts  promptx.PromptSet
	cfg      Config
	log      zerolog.Logger
}

func New(gen contractx.TextGenerator, searcher contractx.Searcher, fetcher contractx.PageFetcher, cfg Config) *Service {
	return &Service{
		gen:      gen,
		searcher: searcher,
		fetcher:  fetcher,
		prompts:  promptx.LoadPromptSet(),
		cfg:      cfg.withDefaults(),
		log:      logx.Component("discovery"),
	}
}

// Discover never fails: when nothing usable turns up it returns the fixed
// fallback list.
func (s *Service) Discover(ctx context.Context, food, address string) Result {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	locality := Locality(address, s.cfg.DefaultCity)
	query := s.buildQuery(ctx, food, locality)
	logger := s.log.With().Str("query", query).Str("locality", locality).Logger()

	results, err := s.search(ctx, query)
	if err != nil {
		logger.Warn().Err(err).Msg("search failed, using fallback restaurants")
		return s.fallback(food, query)
	}

	relevant := filterByLocality(results, locality, s.cfg.MaxResults)
	logger.Debug().Int("results", len(results)).Int("relevant", len(relevant)).Msg("search finished")

	candidates := s.resolveContacts(ctx, relevant)
	if len(candidates) == 0 {
		logger.Info().Msg("no candidate with a contact, using fallback restaurants")
		return s.fallback(food, query)
	}
	if len(candidates) > s.cfg.MaxCandidates {
		candidates = candidates[:s.cfg.MaxCandidates]
	}

	s.enrich(ctx, food, candidates)
	return Result{Candidates: candidates, Provenance: statex.ProvenanceScraped, Query: query}
}

func (s *Service) fallback(food, query string) Result {
	candidates := FallbackCandidates(food)
	if len(candidates) > s.cfg.MaxCandidates {
		candidates = candidates[:s.cfg.MaxCandidates]
	}
	return Result{Candidates: candidates, Provenance: statex.ProvenanceFallback, Query: query}
}

func (s *Service) buildQuery(ctx context.Context, food, locality string) string {
	fallback := TemplateQuery(food, s.cfg.ChannelKeyword, locality)
	if s.gen == nil {
		return fallback
	}
	out, err := s.generate(ctx, s.prompts.SearchQuery, map[string]any{
		"food":     food,
		"locality": locality,
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("query generation failed, using template")
		return fallback
	}
	query := cleanQuery(out)
	if query == "" {
		return fallback
	}
	return query
}

func (s *Service) generate(ctx context.Context, tmpl string, vars map[string]any) (string, error) {
	prompt, err := promptx.Render(ctx, tmpl, vars)
	if err != nil {
		return "", err
	}
	return retryx.Do(ctx, s.cfg.GenerateRetry, func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, prompt)
	})
}

func (s *Service) search(ctx context.Context, query string) ([]contractx.SearchResult, error) {
	if s.searcher == nil {
		return nil, fmt.Errorf("%w: no searcher", contractx.ErrNotConfigured)
	}
	return retryx.Do(ctx, s.cfg.SearchRetry, func(ctx context.Context) ([]contractx.SearchResult, error) {
		return s.searcher.Search(ctx, query)
	})
}

// resolveContacts fetches result pages concurrently and keeps the results,
// in search order, that expose a valid contact.
func (s *Service) resolveContacts(ctx context.Context, results []contractx.SearchResult) []statex.Candidate {
	found := make([]statex.Candidate, len(results))

	p := pool.New().WithMaxGoroutines(s.cfg.FetchConcurrency)
	for i, r := range results {
		p.Go(func() {
			contact := s.contactFromPage(ctx, r.Link)
			if contact == "" {
				contact = FindContact(r.Title + "\n" + r.Snippet)
			}
			if contact == "" {
				return
			}
			found[i] = statex.Candidate{
				Name:       candidateName(r),
				ContactID:  contact,
				Link:       r.Link,
				Provenance: statex.ProvenanceScraped,
			}
		})
	}
	p.Wait()

	seen := make(map[string]struct{}, len(found))
	out := make([]statex.Candidate, 0, len(found))
	for _, c := range found {
		if c.ContactID == "" {
			continue
		}
		if _, dup := seen[c.ContactID]; dup {
			continue
		}
		seen[c.ContactID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func (s *Service) contactFromPage(ctx context.Context, link string) string {
	if s.fetcher == nil || link == "" {
		return ""
	}
	page, err := retryx.Do(ctx, s.cfg.FetchRetry, func(ctx context.Context) (string, error) {
		return s.fetcher.Fetch(ctx, link)
	})
	if err != nil {
		s.log.Debug().Err(err).Str("link", link).Msg("page fetch failed, scanning snippet")
		return ""
	}
	return FindContact(page)
}

func filterByLocality(results []contractx.SearchResult, locality string, limit int) []contractx.SearchResult {
	out := make([]contractx.SearchResult, 0, len(results))
	for _, r := range results {
		if !mentions(r.Title, locality) && !mentions(r.Snippet, locality) && !mentions(r.Link, locality) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

func candidateName(r contractx.SearchResult) string {
	name := r.Title
	for _, sep := range []string{" | ", " - ", " – ", " — "} {
		if idx := strings.Index(name, sep); idx > 0 {
			name = name[:idx]
		}
	}
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	if u, err := url.Parse(r.Link); err == nil && u.Host != "" {
		return strings.TrimPrefix(u.Host, "www.")
	}
	return "Restaurante"
}

func cleanQuery(out string) string {
	line := strings.TrimSpace(out)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.Trim(line, "\"'` ")
	if len(line) > 200 {
		return ""
	}
	return line
}
