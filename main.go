package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	orchestrator "github.com/tanpawarit/chative-order-relay/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	conversationx "github.com/tanpawarit/chative-order-relay/agent/conversation"
	discoveryx "github.com/tanpawarit/chative-order-relay/agent/discovery"
	dispatchx "github.com/tanpawarit/chative-order-relay/agent/dispatch"
	"github.com/tanpawarit/chative-order-relay/agent/handler"
	llmx "github.com/tanpawarit/chative-order-relay/agent/llm"
	schedulex "github.com/tanpawarit/chative-order-relay/agent/schedule"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
	configx "github.com/tanpawarit/chative-order-relay/pkg/config"
	evolutionx "github.com/tanpawarit/chative-order-relay/pkg/evolution"
	_ "github.com/tanpawarit/chative-order-relay/pkg/logger/autoload"
	searchx "github.com/tanpawarit/chative-order-relay/pkg/search"
	twiliox "github.com/tanpawarit/chative-order-relay/pkg/twilio"
)

type AppConfig struct {
	Port            string        `split_words:"true" default:"3000"`
	Backend         string        `split_words:"true" default:"memory"`
	Messenger       string        `split_words:"true" default:"evolution"`
	ShutdownTimeout time.Duration `split_words:"true" default:"15s"`
}

func (c AppConfig) Validate() error {
	switch c.Backend {
	case "memory", "upstash", "postgres":
	default:
		return fmt.Errorf("%w: unknown backend %q", contractx.ErrValidation, c.Backend)
	}
	switch c.Messenger {
	case "evolution", "twilio", "none":
	default:
		return fmt.Errorf("%w: unknown messenger %q", contractx.ErrValidation, c.Messenger)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("APP")

	backend, err := newBackend(ctx, appCfg.Backend)
	if err != nil {
		log.Fatal().Err(err).Str("backend", appCfg.Backend).Msg("state backend init failed")
	}

	messenger, err := newMessenger(appCfg.Messenger)
	if err != nil {
		log.Fatal().Err(err).Str("messenger", appCfg.Messenger).Msg("messenger init failed")
	}

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	gens, err := llmx.NewGenerators(ctx, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("text generators init failed")
	}

	searchCfg := configx.MustNew[searchx.Config]("SEARCH")
	searcher := newSearcher(*searchCfg)
	fetcher := searchx.NewPageFetcher(*searchCfg)

	discoveryCfg := configx.MustNew[discoveryx.Config]("DISCOVERY")
	dispatchCfg := configx.MustNew[dispatchx.Config]("DISPATCH")
	conversationCfg := configx.MustNew[conversationx.Config]("CONVERSATION")
	orchestratorCfg := configx.MustNew[orchestrator.Config]("ORCHESTRATOR")
	httpCfg := configx.MustNew[handler.Config]("HTTP")

	sched := schedulex.New()
	orch, err := orchestrator.New(orchestrator.Deps{
		Backend:    backend,
		Discovery:  discoveryx.New(gens.Discovery, searcher, fetcher, *discoveryCfg),
		Engine:     conversationx.NewEngine(gens.Chat, *conversationCfg),
		Proxy:      conversationx.NewProxyResponder(gens.Proxy, *conversationCfg),
		Dispatcher: dispatchx.NewDispatcher(messenger, sched, *dispatchCfg),
		Fanout:     dispatchx.NewFanout(sched, *dispatchCfg),
		Scheduler:  sched,
		Messenger:  messenger,
	}, *orchestratorCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator init failed")
	}

	app := handler.NewApp(orch, *httpCfg)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", appCfg.Port).Str("backend", appCfg.Backend).Str("messenger", appCfg.Messenger).Msg("order relay listening")
		serveErr <- app.Listen(":" + strings.TrimPrefix(appCfg.Port, ":"))
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("http server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := sched.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("scheduled work still running at shutdown")
	}
	if err := backend.Close(); err != nil {
		log.Error().Err(err).Msg("state backend close failed")
	}
}

func newBackend(ctx context.Context, kind string) (statex.Backend, error) {
	switch kind {
	case "upstash":
		cfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, err
		}
		return statex.NewUpstashRedisStore(*cfg)
	case "postgres":
		cfg, err := configx.New[statex.PostgresConfig]("POSTGRES")
		if err != nil {
			return nil, err
		}
		return statex.NewPostgresStore(ctx, *cfg)
	default:
		log.Warn().Msg("using in-memory state; sessions and orders are lost on restart")
		return statex.NewMemoryStore(), nil
	}
}

// newMessenger returns nil for "none"; outbound sends then only log.
func newMessenger(kind string) (contractx.Messenger, error) {
	switch kind {
	case "evolution":
		cfg, err := configx.New[evolutionx.Config]("EVOLUTION")
		if err != nil {
			return nil, err
		}
		return evolutionx.NewClient(*cfg)
	case "twilio":
		cfg, err := configx.New[twiliox.Config]("TWILIO")
		if err != nil {
			return nil, err
		}
		return twiliox.NewMessenger(*cfg)
	default:
		return logOnlyMessenger{}, nil
	}
}

type logOnlyMessenger struct{}

func (logOnlyMessenger) Send(ctx context.Context, contactID, text string) error {
	log.Info().Str("contact_id", contactID).Str("text", text).Msg("outbound message (no messenger configured)")
	return nil
}

// newSearcher prefers the Custom Search API and falls back to scraping.
func newSearcher(cfg searchx.Config) contractx.Searcher {
	var chain searchx.Fallback
	if google, err := searchx.NewGoogleSearcher(cfg); err == nil {
		chain = append(chain, google)
	} else if !errors.Is(err, contractx.ErrNotConfigured) {
		log.Warn().Err(err).Msg("google search disabled")
	}
	scraper, err := searchx.NewScrapeSearcher(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("scrape search disabled")
	} else {
		chain = append(chain, scraper)
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}
