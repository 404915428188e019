package model

import "encoding/json"

// Lead is a prospective contact discovered for a campaign. Leads are carried
// as JSON inside step results and job progress_data; the Insights sub-object
// is assembled incrementally by the lead-insights chain.
type Lead struct {
	ID          string        `json:"id,omitempty"`
	FirstName   string        `json:"first_name"`
	LastName    string        `json:"last_name"`
	Title       string        `json:"title,omitempty"`
	CompanyName string        `json:"company_name,omitempty"`
	CompanyURL  string        `json:"company_url,omitempty"`
	LinkedInURL string        `json:"linkedin_url,omitempty"`
	Location    string        `json:"location,omitempty"`
	Email       string        `json:"email,omitempty"`
	Insights    *LeadInsights `json:"insights,omitempty"`
}

// LeadInsights accumulates per-lead enrichment across the five chain stages.
// Fields are loosely typed: each stage merges its own keys and later stages
// must tolerate earlier ones being absent after a sweeper re-run.
type LeadInsights struct {
	BusinessInsights map[string]json.RawMessage `json:"businessInsights,omitempty"`
	PersonInsights   map[string]json.RawMessage `json:"personInsights,omitempty"`
}

// MergeBusiness sets one businessInsights key, allocating the map on first use.
func (li *LeadInsights) MergeBusiness(key string, value json.RawMessage) {
	if li.BusinessInsights == nil {
		li.BusinessInsights = make(map[string]json.RawMessage)
	}
	li.BusinessInsights[key] = value
}

// MergePerson sets one personInsights key, allocating the map on first use.
func (li *LeadInsights) MergePerson(key string, value json.RawMessage) {
	if li.PersonInsights == nil {
		li.PersonInsights = make(map[string]json.RawMessage)
	}
	li.PersonInsights[key] = value
}
