package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", ` {"a":1} `, `{"a":1}`},
		{"fence with prose", "Here you go:\n```json\n{\"a\":1}\n```\nHope that helps!", `{"a":1}`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestRepair(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, Repair(`{a: 1}`))
	assert.Equal(t, `{"a": 1, "b_2": "x"}`, Repair(`{a: 1, b_2: "x"}`))
	assert.Equal(t, `{"a": [1, 2]}`, Repair(`{"a": [1, 2,]}`))
	assert.Equal(t, `{"a": 1}`, Repair(`{"a": 1,}`))
}

func TestParseLoose(t *testing.T) {
	out, err := ParseLoose("```json\n{\"a\":1}\n```")
	require.NoError(t, err)

	var v map[string]int
	require.NoError(t, json.Unmarshal(out, &v))
	assert.Equal(t, 1, v["a"])
}

func TestParseLoose_RoundTripsFencedPayload(t *testing.T) {
	// Any well-formed JSON wrapped in fences must survive without loss.
	payload := `{"leads":[{"first_name":"Jane","score":0.92}],"total":1}`
	out, err := ParseLoose("```json\n" + payload + "\n```")
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(out))
}

func TestParseLoose_RepairPath(t *testing.T) {
	out, err := ParseLoose("```json\n{answer: \"yes\", items: [1,2,],}\n```")
	require.NoError(t, err)

	var v struct {
		Answer string `json:"answer"`
		Items  []int  `json:"items"`
	}
	require.NoError(t, json.Unmarshal(out, &v))
	assert.Equal(t, "yes", v.Answer)
	assert.Equal(t, []int{1, 2}, v.Items)
}

func TestParseLoose_Unrecoverable(t *testing.T) {
	_, err := ParseLoose("I could not produce JSON, sorry about that.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
	// The error carries a preview of the offending text for diagnosis.
	assert.Contains(t, err.Error(), "I could not produce JSON")
}

func TestParseLoose_PreviewTruncated(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	_, err := ParseLoose(string(long))
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 600)
}
