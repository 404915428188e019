package model

// StageDescriptor describes one step of a job chain: the job_step it claims,
// the status it expects at claim time, and the insight keys it produces. All
// stage implementations are validated against this table at registration so
// a stage cannot silently drift from its position in the chain.
type StageDescriptor struct {
	Step         int
	Name         string
	ExpectStatus JobStatus
	ResultKeys   []string
	Terminal     bool
}

// LeadInsightStages is the ordered definition of the lead-insights chain.
// Step 0 claims from queued; later steps claim from waiting_for_next_step.
var LeadInsightStages = []StageDescriptor{
	{Step: 0, Name: "financial-profile", ExpectStatus: JobStatusQueued, ResultKeys: []string{"financialProfile", "industryProfile"}},
	{Step: 1, Name: "solutions", ExpectStatus: JobStatusWaitingNext, ResultKeys: []string{"solutions"}},
	{Step: 2, Name: "impact", ExpectStatus: JobStatusWaitingNext, ResultKeys: []string{"impact"}},
	{Step: 3, Name: "objections", ExpectStatus: JobStatusWaitingNext, ResultKeys: []string{"objections"}},
	{Step: 4, Name: "final-fanout", ExpectStatus: JobStatusWaitingNext, Terminal: true, ResultKeys: []string{
		"conversationStarters", "commonalities", "newsInsights", "discoveryQuestions",
		"urgencyRationale", "personalProfile", "emailDiscovery",
	}},
}

// StageByStep returns the descriptor for a step, or false when out of range.
func StageByStep(step int) (StageDescriptor, bool) {
	for _, s := range LeadInsightStages {
		if s.Step == step {
			return s, true
		}
	}
	return StageDescriptor{}, false
}
