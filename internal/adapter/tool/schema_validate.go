package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"pocketsage/internal/domain"
)

// schemaValidator checks decoded tool parameters against the tool's
// compiled JSON Schema before execution.
type schemaValidator struct {
	schema *jsonschema.Schema
}

// compileParamSchema compiles a tool's parameter spec. A spec with no
// properties and no required list needs no validation and compiles to nil.
func compileParamSchema(spec domain.ParamSpec) (*schemaValidator, error) {
	if len(spec.Properties) == 0 && len(spec.Required) == 0 {
		return nil, nil
	}

	raw := spec.JSONSchema()
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &schemaValidator{schema: compiled}, nil
}

// validate checks params against the schema. Nil params validate as an
// empty object. Params are round-tripped through JSON so Go-native
// values (ints, custom types) normalize to the types the validator
// expects.
func (v *schemaValidator) validate(params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return v.schema.Validate(doc)
}
