package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Response envelope schemas. We validate the model output before touching it
// so shape drift surfaces as a parse error instead of a zero-value surprise.

func buildSplitResponseSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"results"},
		"properties": map[string]any{
			"results": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"defects": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type":     "object",
								"required": []string{"text"},
								"properties": map[string]any{
									"text": map[string]any{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}
}

func buildClassifyResponseSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"results"},
		"properties": map[string]any{
			"results": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"chosen"},
					"properties": map[string]any{
						"chosen": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

// validateJSONAgainstSchema validates data against schemaMap.
func validateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
