package llm

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

// Reflect derives an inline JSON Schema from the Go type of v. Every object
// in the result lists all of its properties as required and forbids extra
// keys, which is what strict structured-output modes expect.
func Reflect(v any) (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	requireAll(out)
	return out, nil
}

func requireAll(node map[string]any) {
	if props, ok := node["properties"].(map[string]any); ok {
		keys := make([]string, 0, len(props))
		for k, p := range props {
			keys = append(keys, k)
			if child, ok := p.(map[string]any); ok {
				requireAll(child)
			}
		}
		sort.Strings(keys)
		node["required"] = keys
		node["additionalProperties"] = false
	}
	if items, ok := node["items"].(map[string]any); ok {
		requireAll(items)
	}
}

// Properties returns the "properties" member of a schema object.
func Properties(schema map[string]any) map[string]any {
	props, _ := schema["properties"].(map[string]any)
	return props
}

// Required returns the "required" member of a schema object.
func Required(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
