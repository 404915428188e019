// Package insights implements the stage runners of the lead-insights chain.
// Each runner enriches every lead in a job's progress payload with one class
// of insight, produced by structured LLM completions.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/prospexs-ab/prospexs-api/internal/jobs"
	"github.com/prospexs-ab/prospexs-api/internal/llm"
	"github.com/prospexs-ab/prospexs-api/internal/model"
	"github.com/prospexs-ab/prospexs-api/internal/store"
)

// leadConcurrency bounds per-lead parallelism inside one stage invocation.
const leadConcurrency = 4

// Payload is the progress_data document carried between stages.
type Payload struct {
	CampaignID string       `json:"campaign_id,omitempty"`
	Leads      []model.Lead `json:"leads"`
}

// Service builds the runners for the lead-insights chain.
type Service struct {
	store     store.Store
	completer llm.Completer
}

func NewService(st store.Store, completer llm.Completer) *Service {
	return &Service{store: st, completer: completer}
}

// Runners returns one runner per stage of the chain, keyed by step.
func (s *Service) Runners() map[int]jobs.Runner {
	return map[int]jobs.Runner{
		0: jobs.RunnerFunc(s.runFinancialProfile),
		1: jobs.RunnerFunc(s.runSolutions),
		2: jobs.RunnerFunc(s.runImpact),
		3: jobs.RunnerFunc(s.runObjections),
		4: jobs.RunnerFunc(s.runFinalFanout),
	}
}

// promptContext is the campaign-side context embedded in every stage prompt,
// fetched fresh per invocation so edits between stages are picked up.
type promptContext struct {
	CompanyName    string
	CompanyWebsite string
	Language       string
	CompanySummary string
	Offering       string
}

func (s *Service) loadContext(ctx context.Context, campaignID string) (promptContext, error) {
	campaign, err := s.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return promptContext{}, eris.Wrapf(err, "insights: load campaign %s", campaignID)
	}

	pc := promptContext{
		CompanyName:    campaign.CompanyName,
		CompanyWebsite: campaign.CompanyWebsite,
		Language:       campaign.Language,
	}
	if pc.Language == "" {
		pc.Language = "en"
	}

	progress, err := s.store.GetProgress(ctx, campaign.ProgressID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return pc, nil
		}
		return promptContext{}, eris.Wrapf(err, "insights: load progress %s", campaign.ProgressID)
	}
	pc.CompanySummary = extractText(progress.StepResult(2), "summary")
	pc.Offering = extractText(progress.StepResult(3), "usp")
	return pc, nil
}

// extractText pulls a single string field out of a step result, tolerating
// absent or differently-shaped payloads.
func extractText(raw json.RawMessage, key string) string {
	if raw == nil {
		return ""
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var val string
	if err := json.Unmarshal(doc[key], &val); err != nil {
		return ""
	}
	return val
}

func decodePayload(job *model.Job) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(job.ProgressData, &p); err != nil {
		return nil, eris.Wrapf(err, "insights: decode progress data for job %s", job.ID)
	}
	if p.CampaignID == "" {
		p.CampaignID = job.CampaignID
	}
	if len(p.Leads) == 0 {
		return nil, eris.Errorf("insights: job %s carries no leads", job.ID)
	}
	return &p, nil
}

func encodePayload(p *Payload) (json.RawMessage, error) {
	out, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "insights: encode progress data")
	}
	return out, nil
}

// forEachLead runs fn for every lead concurrently, bounded, all-or-nothing.
func forEachLead(ctx context.Context, leads []model.Lead, fn func(ctx context.Context, lead *model.Lead) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(leadConcurrency)
	for i := range leads {
		lead := &leads[i]
		g.Go(func() error {
			return fn(gctx, lead)
		})
	}
	return g.Wait()
}

func leadDescriptor(lead *model.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", lead.FirstName, lead.LastName)
	if lead.Title != "" {
		fmt.Fprintf(&b, ", %s", lead.Title)
	}
	if lead.CompanyName != "" {
		fmt.Fprintf(&b, " at %s", lead.CompanyName)
	}
	if lead.CompanyURL != "" {
		fmt.Fprintf(&b, " (%s)", lead.CompanyURL)
	}
	if lead.Location != "" {
		fmt.Fprintf(&b, ", based in %s", lead.Location)
	}
	if lead.LinkedInURL != "" {
		fmt.Fprintf(&b, ". LinkedIn: %s", lead.LinkedInURL)
	}
	return b.String()
}

func (pc promptContext) sellerBlock() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Seller: %s (%s).", pc.CompanyName, pc.CompanyWebsite)
	if pc.CompanySummary != "" {
		fmt.Fprintf(&b, "\nAbout the seller: %s", pc.CompanySummary)
	}
	if pc.Offering != "" {
		fmt.Fprintf(&b, "\nOffering: %s", pc.Offering)
	}
	fmt.Fprintf(&b, "\nAnswer in language: %s.", pc.Language)
	return b.String()
}
