package llm

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateSchema validates data against a JSON-schema expressed as a map.
func ValidateSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return eris.Wrap(err, "llm: marshal schema")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return eris.Wrap(err, "llm: add schema resource")
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return eris.Wrap(err, "llm: compile schema")
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "llm: unmarshal data for validation")
	}
	if err := schema.Validate(v); err != nil {
		return eris.Wrap(err, "llm: output does not match schema")
	}
	return nil
}
