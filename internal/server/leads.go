package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/prospexs-ab/prospexs-api/internal/insights"
	"github.com/prospexs-ab/prospexs-api/internal/model"
	"github.com/prospexs-ab/prospexs-api/internal/resilience"
	"github.com/prospexs-ab/prospexs-api/pkg/leadsearch"
	"github.com/prospexs-ab/prospexs-api/pkg/proxycurl"
)

// handleVerifyLinkedIn ingests a LinkedIn profile for the campaign owner,
// writing wizard step 5. A 404 from the enrichment provider is a client
// error, not a server failure.
func (s *Server) handleVerifyLinkedIn(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.ownedCampaign(r)
	if err != nil {
		fail(w, err)
		return
	}

	var req struct {
		LinkedInURL string `json:"linkedin_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LinkedInURL == "" {
		writeError(w, http.StatusBadRequest, "linkedin_url is required")
		return
	}

	profile, err := s.enricher.PersonProfile(r.Context(), req.LinkedInURL)
	if err != nil {
		var apiErr *proxycurl.APIError
		if eris.As(err, &apiErr) && apiErr.NotFound() {
			writeError(w, http.StatusBadRequest, "linkedin profile not found")
			return
		}
		fail(w, err)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"linkedin_url": req.LinkedInURL,
		"profile":      profile,
	})
	if err := s.store.SaveStepResult(r.Context(), campaign.ProgressID, stepLinkedIn, payload); err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, profile)
}

type leadSearchRequest struct {
	Titles       []string `json:"titles"`
	Seniorities  []string `json:"seniorities"`
	Industries   []string `json:"industries"`
	Locations    []string `json:"locations"`
	CompanySizes []string `json:"company_sizes"`
	Keywords     string   `json:"keywords"`
	Page         int      `json:"page"`
	PerPage      int      `json:"per_page"`
}

// handleSearchLeads finds prospects matching a persona, writing wizard step 7.
func (s *Server) handleSearchLeads(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.ownedCampaign(r)
	if err != nil {
		fail(w, err)
		return
	}

	var req leadSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Titles) == 0 && req.Keywords == "" {
		writeError(w, http.StatusBadRequest, "titles or keywords are required")
		return
	}

	resp, err := resilience.DoVal(r.Context(), resilience.RetryConfig{
		OnRetry: resilience.Logged("leadsearch", "search people"),
	}, func(ctx context.Context) (*leadsearch.SearchResponse, error) {
		return s.leadSearch.SearchPeople(ctx, leadsearch.SearchRequest{
			PersonTitles:      req.Titles,
			PersonSeniorities: req.Seniorities,
			Industries:        req.Industries,
			Locations:         req.Locations,
			CompanySizes:      req.CompanySizes,
			Keywords:          req.Keywords,
			Page:              req.Page,
			PerPage:           req.PerPage,
		})
	})
	if err != nil {
		fail(w, err)
		return
	}

	leads := make([]model.Lead, 0, len(resp.People))
	for _, p := range resp.People {
		leads = append(leads, model.Lead{
			ID:          p.ID,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Title:       p.Title,
			CompanyName: p.Organization.Name,
			CompanyURL:  p.Organization.WebsiteURL,
			LinkedInURL: p.LinkedInURL,
			Location:    joinLocation(p.City, p.Country),
			Email:       p.Email,
		})
	}

	payload, _ := json.Marshal(map[string]any{
		"leads":      leads,
		"pagination": resp.Pagination,
	})
	if err := s.store.SaveStepResult(r.Context(), campaign.ProgressID, stepLeadSearch, payload); err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"leads":      leads,
		"pagination": resp.Pagination,
	})
}

// handleEnqueueInsights queues the selected leads for the lead-insights
// chain. The job is picked up asynchronously by the stage endpoints.
func (s *Server) handleEnqueueInsights(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.ownedCampaign(r)
	if err != nil {
		fail(w, err)
		return
	}

	var req struct {
		Leads []model.Lead `json:"leads"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Leads) == 0 {
		writeError(w, http.StatusBadRequest, "leads are required")
		return
	}

	payload, err := json.Marshal(insights.Payload{CampaignID: campaign.ID, Leads: req.Leads})
	if err != nil {
		fail(w, eris.Wrap(err, "server: encode job payload"))
		return
	}

	job, err := s.store.EnqueueJob(r.Context(), model.JobNameLeadInsights, campaign.ID, payload)
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusAccepted, job)
}

// handleCollectInsights persists a completed enrichment job's leads into
// wizard step 8 so the saved-list step can build on them.
func (s *Server) handleCollectInsights(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.ownedCampaign(r)
	if err != nil {
		fail(w, err)
		return
	}

	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	job, err := s.store.GetJob(r.Context(), req.JobID)
	if err != nil {
		fail(w, err)
		return
	}
	if job.CampaignID != campaign.ID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if job.Status != model.JobStatusCompleted {
		writeError(w, http.StatusConflict, "job not completed")
		return
	}

	if err := s.store.SaveStepResult(r.Context(), campaign.ProgressID, stepEnrichedList, job.ProgressData); err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, json.RawMessage(job.ProgressData))
}

// handleSaveLeads stores the user's final lead selection, writing wizard
// step 9.
func (s *Server) handleSaveLeads(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.ownedCampaign(r)
	if err != nil {
		fail(w, err)
		return
	}

	var req struct {
		Leads []model.Lead `json:"leads"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Leads) == 0 {
		writeError(w, http.StatusBadRequest, "leads are required")
		return
	}

	payload, _ := json.Marshal(map[string]any{"leads": req.Leads})
	if err := s.store.SaveStepResult(r.Context(), campaign.ProgressID, stepSavedLeads, payload); err != nil {
		fail(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "leads saved")
}

func joinLocation(city, country string) string {
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	default:
		return country
	}
}
