package insights

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/prospexs-ab/prospexs-api/internal/llm"
	"github.com/prospexs-ab/prospexs-api/internal/model"
)

const stageSystem = "You are a B2B sales research analyst. Respond with a single JSON object only, no prose, no markdown."

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

// completeForLead issues one structured completion and merges each produced
// key into the lead's insight maps. person keys go under personInsights,
// everything else under businessInsights.
func (s *Service) completeForLead(ctx context.Context, lead *model.Lead, req llm.Request, personKeys map[string]bool) error {
	raw, err := s.completer.Complete(ctx, req)
	if err != nil {
		return err
	}

	var result map[string]json.RawMessage
	if err := json.Unmarshal(raw, &result); err != nil {
		return eris.Wrap(err, "insights: decode completion")
	}

	if lead.Insights == nil {
		lead.Insights = &model.LeadInsights{}
	}
	for key, value := range result {
		if personKeys[key] {
			lead.Insights.MergePerson(key, value)
		} else {
			lead.Insights.MergeBusiness(key, value)
		}
	}
	return nil
}

// Stage 0: financial and industry profile of each lead's company.
func (s *Service) runFinancialProfile(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	pc, err := s.loadContext(ctx, payload.CampaignID)
	if err != nil {
		return nil, err
	}

	err = forEachLead(ctx, payload.Leads, func(ctx context.Context, lead *model.Lead) error {
		prompt := fmt.Sprintf(`%s

Prospect: %s

Profile the prospect's company. Return JSON with:
- "financialProfile": estimated revenue band, funding posture, growth signals
- "industryProfile": industry, sub-sector, market position, notable competitors`,
			pc.sellerBlock(), leadDescriptor(lead))

		return s.completeForLead(ctx, lead, llm.Request{
			System: stageSystem,
			Prompt: prompt,
			Schema: objectSchema("financialProfile", "industryProfile"),
		}, nil)
	})
	if err != nil {
		return nil, eris.Wrap(err, "insights: financial profile stage")
	}
	return encodePayload(payload)
}

// Stage 1: which of the seller's solutions fit each prospect.
func (s *Service) runSolutions(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	pc, err := s.loadContext(ctx, payload.CampaignID)
	if err != nil {
		return nil, err
	}

	err = forEachLead(ctx, payload.Leads, func(ctx context.Context, lead *model.Lead) error {
		prompt := fmt.Sprintf(`%s

Prospect: %s
Known company profile: %s

Propose how the seller's offering maps onto this prospect's likely problems.
Return JSON with "solutions": an array of 2-4 objects, each with "problem",
"solution", and "relevance" fields.`,
			pc.sellerBlock(), leadDescriptor(lead), businessInsight(lead, "industryProfile"))

		return s.completeForLead(ctx, lead, llm.Request{
			System: stageSystem,
			Prompt: prompt,
			Schema: objectSchema("solutions"),
		}, nil)
	})
	if err != nil {
		return nil, eris.Wrap(err, "insights: solutions stage")
	}
	return encodePayload(payload)
}

// Stage 2: quantify the impact of each proposed solution.
func (s *Service) runImpact(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	pc, err := s.loadContext(ctx, payload.CampaignID)
	if err != nil {
		return nil, err
	}

	err = forEachLead(ctx, payload.Leads, func(ctx context.Context, lead *model.Lead) error {
		prompt := fmt.Sprintf(`%s

Prospect: %s
Proposed solutions: %s

Quantify the business impact of each proposed solution for this prospect.
Return JSON with "impact": an array matching the solutions, each entry with
"solution", "metric", "estimatedEffect", and "timeframe" fields.`,
			pc.sellerBlock(), leadDescriptor(lead), businessInsight(lead, "solutions"))

		return s.completeForLead(ctx, lead, llm.Request{
			System: stageSystem,
			Prompt: prompt,
			Schema: objectSchema("impact"),
		}, nil)
	})
	if err != nil {
		return nil, eris.Wrap(err, "insights: impact stage")
	}
	return encodePayload(payload)
}

// Stage 3: likely objections and counters.
func (s *Service) runObjections(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	pc, err := s.loadContext(ctx, payload.CampaignID)
	if err != nil {
		return nil, err
	}

	err = forEachLead(ctx, payload.Leads, func(ctx context.Context, lead *model.Lead) error {
		prompt := fmt.Sprintf(`%s

Prospect: %s
Proposed solutions: %s
Expected impact: %s

List the objections this prospect is most likely to raise and how to counter
each. Return JSON with "objections": an array of objects with "objection",
"counter", and "severity" fields.`,
			pc.sellerBlock(), leadDescriptor(lead),
			businessInsight(lead, "solutions"), businessInsight(lead, "impact"))

		return s.completeForLead(ctx, lead, llm.Request{
			System: stageSystem,
			Prompt: prompt,
			Schema: objectSchema("objections"),
		}, nil)
	})
	if err != nil {
		return nil, eris.Wrap(err, "insights: objections stage")
	}
	return encodePayload(payload)
}

// fanoutTask is one of the independent completions the terminal stage issues
// per lead. Person tasks merge under personInsights.
type fanoutTask struct {
	key    string
	person bool
	prompt string
}

func fanoutTasks(pc promptContext, lead *model.Lead) []fanoutTask {
	seller := pc.sellerBlock()
	prospect := leadDescriptor(lead)
	return []fanoutTask{
		{key: "conversationStarters", prompt: fmt.Sprintf(`%s

Prospect: %s

Write 3 personalized conversation starters for a first outreach. Return JSON
with "conversationStarters": an array of strings.`, seller, prospect)},
		{key: "commonalities", prompt: fmt.Sprintf(`%s

Prospect: %s

Identify commonalities between the seller and the prospect's company (market,
customers, tooling, region). Return JSON with "commonalities": an array of
strings.`, seller, prospect)},
		{key: "newsInsights", prompt: fmt.Sprintf(`%s

Prospect: %s

Summarize plausible recent developments at the prospect's company relevant to
the seller's offering. Return JSON with "newsInsights": an array of objects
with "headline" and "relevance" fields.`, seller, prospect)},
		{key: "discoveryQuestions", prompt: fmt.Sprintf(`%s

Prospect: %s
Proposed solutions: %s

Write 4 discovery questions tailored to this prospect. Return JSON with
"discoveryQuestions": an array of strings.`, seller, prospect, businessInsight(lead, "solutions"))},
		{key: "urgencyRationale", prompt: fmt.Sprintf(`%s

Prospect: %s
Expected impact: %s

Explain why acting now matters for this prospect. Return JSON with
"urgencyRationale": a short string.`, seller, prospect, businessInsight(lead, "impact"))},
		{key: "personalProfile", person: true, prompt: fmt.Sprintf(`%s

Prospect: %s

Sketch the prospect's likely professional profile: seniority, priorities,
communication style. Return JSON with "personalProfile": an object with
"seniority", "priorities" (array), and "communicationStyle" fields.`, seller, prospect)},
		{key: "emailDiscovery", person: true, prompt: fmt.Sprintf(`%s

Prospect: %s

Infer the most likely corporate email patterns for this prospect. Return JSON
with "emailDiscovery": an object with "candidates" (array of addresses) and
"pattern" fields.`, seller, prospect)},
	}
}

// Stage 4: terminal fan-out. Every task for every lead runs concurrently and
// the whole batch is all-or-nothing: one failed call discards its siblings,
// the chain requeues the job from step 0.
func (s *Service) runFinalFanout(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}
	pc, err := s.loadContext(ctx, payload.CampaignID)
	if err != nil {
		return nil, err
	}

	err = forEachLead(ctx, payload.Leads, func(ctx context.Context, lead *model.Lead) error {
		tasks := fanoutTasks(pc, lead)
		results := make([]json.RawMessage, len(tasks))

		g, gctx := errgroup.WithContext(ctx)
		for i, task := range tasks {
			g.Go(func() error {
				raw, err := s.completer.Complete(gctx, llm.Request{
					System: stageSystem,
					Prompt: task.prompt,
					Schema: objectSchema(task.key),
				})
				if err != nil {
					return eris.Wrapf(err, "insights: fanout task %s", task.key)
				}
				results[i] = raw
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// Merge only after every sibling call succeeded.
		if lead.Insights == nil {
			lead.Insights = &model.LeadInsights{}
		}
		for i, task := range tasks {
			var doc map[string]json.RawMessage
			if err := json.Unmarshal(results[i], &doc); err != nil {
				return eris.Wrapf(err, "insights: decode fanout result %s", task.key)
			}
			for key, value := range doc {
				if task.person {
					lead.Insights.MergePerson(key, value)
				} else {
					lead.Insights.MergeBusiness(key, value)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "insights: final fanout stage")
	}
	return encodePayload(payload)
}

// businessInsight renders a previously merged insight for prompt embedding.
func businessInsight(lead *model.Lead, key string) string {
	if lead.Insights == nil || lead.Insights.BusinessInsights == nil {
		return "(not yet profiled)"
	}
	raw, ok := lead.Insights.BusinessInsights[key]
	if !ok {
		return "(not yet profiled)"
	}
	return string(raw)
}
