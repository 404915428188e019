package main

import (
	"context"

	"github.com/prospexs-ab/prospexs-api/internal/auth"
	"github.com/prospexs-ab/prospexs-api/internal/insights"
	"github.com/prospexs-ab/prospexs-api/internal/jobs"
	"github.com/prospexs-ab/prospexs-api/internal/llm"
	"github.com/prospexs-ab/prospexs-api/internal/model"
	"github.com/prospexs-ab/prospexs-api/internal/server"
	"github.com/prospexs-ab/prospexs-api/internal/store"
	"github.com/prospexs-ab/prospexs-api/pkg/leadsearch"
	"github.com/prospexs-ab/prospexs-api/pkg/perplexity"
	"github.com/prospexs-ab/prospexs-api/pkg/proxycurl"
	"github.com/prospexs-ab/prospexs-api/pkg/scrapeapi"
)

// env bundles the long-lived dependencies a command wires together.
type env struct {
	Store   store.Store
	Server  *server.Server
	Sweeper *jobs.Sweeper
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// initStore opens the Postgres pool using the loaded config.
func initStore(ctx context.Context) (store.Store, error) {
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
}

// initEnv constructs the full dependency graph: store, provider clients,
// the LLM fallback pair, the lead-insights chain, and the HTTP server.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	primary := llm.NewAnthropic(
		cfg.Anthropic.Key,
		cfg.Anthropic.Model,
		cfg.Anthropic.MaxTokens,
		llm.WithRateLimit(cfg.Anthropic.RPS, cfg.Anthropic.Burst),
	)
	secondary := llm.NewPerplexityCompleter(
		perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		),
		cfg.Perplexity.Model,
	)
	completer := llm.NewFallback(primary, secondary)

	insightSvc := insights.NewService(st, completer)
	chain, err := jobs.NewChain(st, model.JobNameLeadInsights, model.LeadInsightStages, insightSvc.Runners(), cfg.Jobs.ProcessingCap)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	sweeper := jobs.NewSweeper(st, cfg.Jobs.StaleAfter, cfg.Jobs.RetryCeiling)

	srv := server.New(
		cfg,
		st,
		auth.NewResolver(cfg.Auth.BaseURL, cfg.Auth.APIKey),
		completer,
		scrapeapi.NewClient(cfg.Scrape.Key, scrapeapi.WithBaseURL(cfg.Scrape.BaseURL)),
		proxycurl.NewClient(cfg.Proxycurl.Key, proxycurl.WithBaseURL(cfg.Proxycurl.BaseURL)),
		leadsearch.NewClient(cfg.LeadSearch.Key, leadsearch.WithBaseURL(cfg.LeadSearch.BaseURL)),
		chain,
		sweeper,
	)

	return &env{Store: st, Server: srv, Sweeper: sweeper}, nil
}
