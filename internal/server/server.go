// Package server exposes the HTTP surface: campaign wizard endpoints, the
// lead-insights stage endpoints, and the maintenance endpoints.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/prospexs-ab/prospexs-api/internal/auth"
	"github.com/prospexs-ab/prospexs-api/internal/config"
	"github.com/prospexs-ab/prospexs-api/internal/jobs"
	"github.com/prospexs-ab/prospexs-api/internal/llm"
	"github.com/prospexs-ab/prospexs-api/internal/store"
	"github.com/prospexs-ab/prospexs-api/pkg/leadsearch"
	"github.com/prospexs-ab/prospexs-api/pkg/proxycurl"
	"github.com/prospexs-ab/prospexs-api/pkg/scrapeapi"
)

// Server wires the handlers to their dependencies.
type Server struct {
	cfg        *config.Config
	store      store.Store
	resolver   auth.Resolver
	completer  llm.Completer
	scraper    scrapeapi.Client
	enricher   proxycurl.Client
	leadSearch leadsearch.Client
	chain      *jobs.Chain
	sweeper    *jobs.Sweeper
}

func New(
	cfg *config.Config,
	st store.Store,
	resolver auth.Resolver,
	completer llm.Completer,
	scraper scrapeapi.Client,
	enricher proxycurl.Client,
	leadSearch leadsearch.Client,
	chain *jobs.Chain,
	sweeper *jobs.Sweeper,
) *Server {
	return &Server{
		cfg:        cfg,
		store:      st,
		resolver:   resolver,
		completer:  completer,
		scraper:    scraper,
		enricher:   enricher,
		leadSearch: leadSearch,
		chain:      chain,
		sweeper:    sweeper,
	}
}

// Handler builds the router. Every route is JSON over permissive CORS with
// bearer-token auth; preflight OPTIONS short-circuits before auth.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "apikey"},
		MaxAge:         300,
	}))
	r.Use(s.recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		s.mountAPI(r)
	})

	return r
}

func (s *Server) mountAPI(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", s.handleListCampaigns)
		r.Post("/", s.handleCreateCampaign)
		r.Route("/{campaignID}", func(r chi.Router) {
			r.Get("/", s.handleGetCampaign)
			r.Put("/", s.handleUpdateCampaign)
			r.Get("/progress", s.handleGetProgress)
			r.Post("/analyze", s.handleAnalyzeCompany)
			r.Post("/usp", s.handleGenerateUSP)
			r.Post("/audiences", s.handleDiscoverAudiences)
			r.Post("/audiences/deep-dive", s.handleAudienceDeepDive)
			r.Post("/linkedin/verify", s.handleVerifyLinkedIn)
			r.Post("/leads/search", s.handleSearchLeads)
			r.Post("/leads/insights", s.handleEnqueueInsights)
			r.Post("/leads/insights/collect", s.handleCollectInsights)
			r.Post("/leads/save", s.handleSaveLeads)
			r.Post("/email-draft", s.handleEmailDraft)
		})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/lead-insights/{step}", s.handleRunStage)
		r.Get("/stats", s.handleJobStats)
		r.Get("/{jobID}", s.handleGetJob)
		r.Post("/sweep", s.handleSweep)
		r.Post("/cleanup", s.handleCleanup)
	})
}
