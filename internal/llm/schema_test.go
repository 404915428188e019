package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leadSchema = map[string]any{
	"type":     "object",
	"required": []any{"first_name", "last_name"},
	"properties": map[string]any{
		"first_name": map[string]any{"type": "string"},
		"last_name":  map[string]any{"type": "string"},
		"score":      map[string]any{"type": "number"},
	},
}

func TestValidateSchema_Valid(t *testing.T) {
	err := ValidateSchema(leadSchema, []byte(`{"first_name":"Jane","last_name":"Doe","score":0.8}`))
	assert.NoError(t, err)
}

func TestValidateSchema_MissingRequired(t *testing.T) {
	err := ValidateSchema(leadSchema, []byte(`{"first_name":"Jane"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match schema")
}

func TestValidateSchema_WrongType(t *testing.T) {
	err := ValidateSchema(leadSchema, []byte(`{"first_name":"Jane","last_name":"Doe","score":"high"}`))
	require.Error(t, err)
}

func TestValidateSchema_InvalidData(t *testing.T) {
	err := ValidateSchema(leadSchema, []byte(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal data")
}
