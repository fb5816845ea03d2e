package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Name identifies the output schema to providers that require one
// (OpenAI json_schema name, Bedrock tool name).
const Name = "record_flagged_content"

// FieldDescription describes each item of flaggedContent.
const FieldDescription = "Array of specific words or phrases that are inappropriate for memorial content"

// ErrNonConforming is returned when extracted data violates the schema.
var ErrNonConforming = errors.New("output does not conform to schema")

// FlaggedContent is the only shape the extraction capability may return.
type FlaggedContent struct {
	FlaggedContent []string `json:"flaggedContent"`
}

var (
	once     sync.Once
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
	initErr  error
)

func build() {
	schema = &jsonschema.Schema{
		Type:     "object",
		Required: []string{"flaggedContent"},
		Properties: map[string]*jsonschema.Schema{
			"flaggedContent": {
				Type:        "array",
				Description: FieldDescription,
				Items: &jsonschema.Schema{
					Type:        "string",
					Description: "A specific word or phrase inappropriate for memorial content",
				},
			},
		},
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
	resolved, initErr = schema.Resolve(nil)
}

// Schema returns the declared output schema.
func Schema() *jsonschema.Schema {
	once.Do(build)
	return schema
}

// Map returns the schema as a generic JSON object, for providers that take
// the schema as a document rather than typed JSON.
func Map() (map[string]any, error) {
	data, err := json.Marshal(Schema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	// Strict providers only accept the literal false form.
	m["additionalProperties"] = false
	return m, nil
}

// Decode validates raw against the schema and returns the flagged spans.
// The returned slice is never nil.
func Decode(raw []byte) ([]string, error) {
	once.Do(build)
	if initErr != nil {
		return nil, fmt.Errorf("resolve schema: %w", initErr)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrNonConforming)
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonConforming, err)
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonConforming, err)
	}

	var fc FlaggedContent
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonConforming, err)
	}
	if fc.FlaggedContent == nil {
		return []string{}, nil
	}
	return fc.FlaggedContent, nil
}
