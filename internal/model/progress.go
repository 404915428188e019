package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// ProgressStepCount is the number of wizard steps a campaign walks through.
const ProgressStepCount = 10

// Progress is the per-campaign step-indexed result cache. LatestStep is the
// highest step whose result is present and valid; writing step N nulls every
// later step so stale downstream results never survive an upstream edit.
type Progress struct {
	ID         string                             `json:"id"`
	LatestStep int                                `json:"latest_step"`
	Steps      [ProgressStepCount]json.RawMessage `json:"-"`
	CreatedAt  time.Time                          `json:"created_at"`
	UpdatedAt  time.Time                          `json:"updated_at"`
}

// StepResult returns the cached result for step (1-based), or nil.
func (p *Progress) StepResult(step int) json.RawMessage {
	if step < 1 || step > ProgressStepCount {
		return nil
	}
	return p.Steps[step-1]
}

// MarshalJSON flattens the step array into step_1_result..step_10_result keys,
// matching the wire shape the frontend wizard reads.
func (p *Progress) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"id":          p.ID,
		"latest_step": p.LatestStep,
		"created_at":  p.CreatedAt,
		"updated_at":  p.UpdatedAt,
	}
	for i, raw := range p.Steps {
		key := StepColumn(i + 1)
		if raw == nil {
			out[key] = nil
		} else {
			out[key] = raw
		}
	}
	return json.Marshal(out)
}

// StepColumn returns the column/key name for a 1-based step number.
func StepColumn(step int) string {
	return "step_" + strconv.Itoa(step) + "_result"
}
