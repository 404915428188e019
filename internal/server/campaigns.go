package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospexs-ab/prospexs-api/internal/store"
)

type campaignRequest struct {
	CompanyName    string `json:"company_name"`
	CompanyWebsite string `json:"company_website"`
	Language       string `json:"language"`
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	campaigns, err := s.store.ListCampaigns(r.Context(), user.ID)
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, campaigns)
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CompanyWebsite == "" {
		writeError(w, http.StatusBadRequest, "company_website is required")
		return
	}

	user := userFrom(r.Context())
	if req.Language == "" || req.CompanyName == "" {
		s.applyUserDefaults(r, &req, user.ID)
	}
	if req.Language == "" {
		req.Language = "en"
	}

	campaign, err := s.store.CreateCampaign(r.Context(), user.ID, store.CampaignInput{
		CompanyName:    req.CompanyName,
		CompanyWebsite: req.CompanyWebsite,
		Language:       req.Language,
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, campaign)
}

// applyUserDefaults fills missing campaign fields from the user_details row.
// Absence of the row is not an error; the caller falls back to literals.
func (s *Server) applyUserDefaults(r *http.Request, req *campaignRequest, userID string) {
	details, err := s.store.GetUserDetails(r.Context(), userID)
	if err != nil {
		if !eris.Is(err, store.ErrNotFound) {
			zap.L().Warn("user details lookup failed", zap.Error(err))
		}
		return
	}
	if req.Language == "" {
		req.Language = details.Language
	}
	if req.CompanyName == "" {
		req.CompanyName = details.CompanyName
	}
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	campaign, err := s.store.GetCampaign(r.Context(), user.ID, chi.URLParam(r, "campaignID"))
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, campaign)
}

func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user := userFrom(r.Context())
	err := s.store.UpdateCampaign(r.Context(), user.ID, chi.URLParam(r, "campaignID"), store.CampaignInput{
		CompanyName:    req.CompanyName,
		CompanyWebsite: req.CompanyWebsite,
		Language:       req.Language,
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "campaign updated")
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	campaign, err := s.store.GetCampaign(r.Context(), user.ID, chi.URLParam(r, "campaignID"))
	if err != nil {
		fail(w, err)
		return
	}
	progress, err := s.store.GetProgress(r.Context(), campaign.ProgressID)
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, progress)
}
