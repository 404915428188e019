package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/prospexs-ab/prospexs-api/internal/llm"
	"github.com/prospexs-ab/prospexs-api/internal/model"
	"github.com/prospexs-ab/prospexs-api/internal/resilience"
	"github.com/prospexs-ab/prospexs-api/pkg/scrapeapi"
)

// Wizard step numbers for the campaign progress document.
const (
	stepDetection    = 1
	stepSummary      = 2
	stepOffer        = 3
	stepAudiences    = 4
	stepLinkedIn     = 5
	stepDeepDive     = 6
	stepLeadSearch   = 7
	stepEnrichedList = 8
	stepSavedLeads   = 9
	stepEmailDraft   = 10
)

const analystSystem = "You are a B2B go-to-market analyst. Respond with a single JSON object only, no prose, no markdown."

func (s *Server) ownedCampaign(r *http.Request) (*model.Campaign, error) {
	user := userFrom(r.Context())
	return s.store.GetCampaign(r.Context(), user.ID, chi.URLParam(r, "campaignID"))
}

// handleAnalyzeCompany scrapes the campaign website and derives the language
// detection and company summary, writing wizard steps 1 and 2.
func (s *Server) handleAnalyzeCompany(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.ownedCampaign(r)
	if err != nil {
		fail(w, err)
		return
	}

	page, err := resilience.DoVal(r.Context(), resilience.RetryConfig{
		OnRetry: resilience.Logged("scrapeapi", "scrape"),
	}, func(ctx context.Context) (*scrapeapi.ScrapeResponse, error) {
		return s.scraper.Scrape(ctx, scrapeapi.ScrapeRequest{URL: campaign.CompanyWebsite})
	})
	if err != nil {
		fail(w, err)
		return
	}

	prompt := fmt.Sprintf(`Website: %s
Page title: %s
Page content (markdown):
%s

Analyze this company website. Return JSON with:
- "language": the site's primary language as an ISO 639-1 code
- "company_name": the company's name
- "summary": 3-5 sentences describing what the company sells and to whom`,
		campaign.CompanyWebsite, page.Data.Title, clip(page.Data.Markdown, 12000))

	result, err := s.completer.Complete(r.Context(), llm.Request{
		System: analystSystem,
		Prompt: prompt,
		Schema: objectSchema("language", "company_name", "summary"),
	})
	if err != nil {
		fail(w, err)
		return
	}

	var analysis struct {
		Language    string `json:"language"`
		CompanyName string `json:"company_name"`
		Summary     string `json:"summary"`
	}
	if err := json.Unmarshal(result, &analysis); err != nil {
		fail(w, err)
		return
	}

	detection, _ := json.Marshal(map[string]string{
		"language":     analysis.Language,
		"company_name": analysis.CompanyName,
	})
	if err := s.store.SaveStepResult(r.Context(), campaign.ProgressID, stepDetection, detection); err != nil {
		fail(w, err)
		return
	}
	summary, _ := json.Marshal(map[string]string{"summary": analysis.Summary})
	if err := s.store.SaveStepResult(r.Context(), campaign.ProgressID, stepSummary, summary); err != nil {
		fail(w, err)
		return
	}

	writeData(w, http.StatusOK, json.RawMessage(result))
}

// handleGenerateUSP derives the USP, benefits, and problems solved from the
// step-2 summary, writing wizard step 3.
func (s *Server) handleGenerateUSP(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.ownedCampaign(r)
	if err != nil {
		fail(w, err)
		return
	}

	summary, err := s.requireStep(r, campaign.ProgressID, stepSummary)
	if err != nil {
		writeError(w, http.StatusBadRequest, "run website analysis first")
		return
	}

	prompt := fmt.Sprintf(`Company: %s (%s)
Summary: %s

Derive the company's selling angle. Return JSON with:
- "usp": one-sentence unique selling proposition
- "benefits": array of 3-5 customer benefits
- "problems": array of 3-5 customer problems the offering solves
Answer in language: %s.`,
		campaign.CompanyName, campaign.CompanyWebsite, summary, campaign.Language)

	result, err := s.completer.Complete(r.Context(), llm.Request{
		System: analystSystem,
		Prompt: prompt,
		Schema: objectSchema("usp", "benefits", "problems"),
	})
	if err != nil {
		fail(w, err)
		return
	}
	if err := s.store.SaveStepResult(r.Context(), campaign.ProgressID, stepOffer, result); err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, json.RawMessage(result))
}

// handleDiscoverAudiences proposes target audiences, writing wizard step 4.
func (s *Server) handleDiscoverAudiences(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.ownedCampaign(r)
	if err != nil {
		fail(w, err)
		return
	}

	offer, err := s.requireStep(r, campaign.ProgressID, stepOffer)
	if err != nil {
		writeError(w, http.StatusBadRequest, "generate the selling angle first")
		return
	}

	prompt := fmt.Sprintf(`Company: %s (%s)
Selling angle: %s

Propose target audiences for outbound prospecting. Return JSON with
"audiences": an array of 3-6 objects, each with "name", "titles" (array of
job titles), "industries" (array), "company_sizes" (array of ranges like
"11-50"), and "rationale" fields. Answer in language: %s.`,
		campaign.CompanyName, campaign.CompanyWebsite, offer, campaign.Language)

	result, err := s.completer.Complete(r.Context(), llm.Request{
		System: analystSystem,
		Prompt: prompt,
		Schema: objectSchema("audiences"),
	})
	if err != nil {
		fail(w, err)
		return
	}
	if err := s.store.SaveStepResult(r.Context(), campaign.ProgressID, stepAudiences, result); err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, json.RawMessage(result))
}

// handleAudienceDeepDive expands one chosen audience, writing wizard step 6.
func (s *Server) handleAudienceDeepDive(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.ownedCampaign(r)
	if err != nil {
		fail(w, err)
		return
	}

	var req struct {
		Audience json.RawMessage `json:"audience"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Audience) == 0 {
		writeError(w, http.StatusBadRequest, "audience is required")
		return
	}

	prompt := fmt.Sprintf(`Company: %s (%s)
Chosen audience: %s

Deep-dive this audience. Return JSON with:
- "pains": array of the audience's most pressing pains
- "buying_triggers": array of events that open a buying window
- "messaging_angles": array of angles that resonate with this audience
- "watering_holes": array of channels where this audience is reachable
Answer in language: %s.`,
		campaign.CompanyName, campaign.CompanyWebsite, req.Audience, campaign.Language)

	result, err := s.completer.Complete(r.Context(), llm.Request{
		System: analystSystem,
		Prompt: prompt,
		Schema: objectSchema("pains", "buying_triggers", "messaging_angles", "watering_holes"),
	})
	if err != nil {
		fail(w, err)
		return
	}

	payload, _ := json.Marshal(map[string]json.RawMessage{
		"audience": req.Audience,
		"insights": result,
	})
	if err := s.store.SaveStepResult(r.Context(), campaign.ProgressID, stepDeepDive, payload); err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, json.RawMessage(result))
}

// handleEmailDraft writes a first-touch email for one lead, writing wizard
// step 10.
func (s *Server) handleEmailDraft(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.ownedCampaign(r)
	if err != nil {
		fail(w, err)
		return
	}

	var req struct {
		Lead model.Lead `json:"lead"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Lead.FirstName == "" {
		writeError(w, http.StatusBadRequest, "lead is required")
		return
	}

	insights := "(no insights yet)"
	if req.Lead.Insights != nil {
		if raw, err := json.Marshal(req.Lead.Insights); err == nil {
			insights = string(raw)
		}
	}

	prompt := fmt.Sprintf(`Seller: %s (%s)
Recipient: %s %s, %s at %s
Recipient insights: %s

Write a short, personalized first-touch email. Return JSON with "subject"
and "body" fields. Answer in language: %s.`,
		campaign.CompanyName, campaign.CompanyWebsite,
		req.Lead.FirstName, req.Lead.LastName, req.Lead.Title, req.Lead.CompanyName,
		insights, campaign.Language)

	result, err := s.completer.Complete(r.Context(), llm.Request{
		System: analystSystem,
		Prompt: prompt,
		Schema: objectSchema("subject", "body"),
	})
	if err != nil {
		fail(w, err)
		return
	}
	if err := s.store.SaveStepResult(r.Context(), campaign.ProgressID, stepEmailDraft, result); err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, json.RawMessage(result))
}

// requireStep fetches a progress step that a handler depends on.
func (s *Server) requireStep(r *http.Request, progressID string, step int) (json.RawMessage, error) {
	progress, err := s.store.GetProgress(r.Context(), progressID)
	if err != nil {
		return nil, err
	}
	raw := progress.StepResult(step)
	if raw == nil {
		return nil, eris.Errorf("server: step %d result missing", step)
	}
	return raw, nil
}

// objectSchema builds a jsonschema requiring the given top-level keys.
func objectSchema(required ...string) map[string]any {
	props := map[string]any{}
	for _, key := range required {
		props[key] = map[string]any{}
	}
	return map[string]any{
		"type":       "object",
		"required":   required,
		"properties": props,
	}
}

// clip bounds prompt-embedded page content.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
