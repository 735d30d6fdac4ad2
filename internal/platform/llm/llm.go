// Package llm holds the contract shared by the text-generation providers.
package llm

import (
	"context"
	"errors"
)

// ErrNoStructuredOutput is returned when a provider answered without the
// structured payload that was requested.
var ErrNoStructuredOutput = errors.New("llm: no structured output in response")

// JSONGenerator produces one JSON object conforming to schema.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
	// Name identifies the provider in logs and metrics.
	Name() string
}
