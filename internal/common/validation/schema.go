// Package validation checks admin API payloads against JSON schemas.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateJSON validates a raw JSON document against a JSON schema document.
func ValidateJSON(document []byte, schema string) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, resultErr := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   resultErr.Field(),
			Message: resultErr.Description(),
		})
	}
	return out, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// ErrorString joins all error messages into one details string.
func (vr *ValidationResult) ErrorString() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}

// EndpointProfileSchema constrains create/update bodies on the endpoint admin API.
const EndpointProfileSchema = `{
	"type": "object",
	"properties": {
		"endpoint": {"type": "string", "minLength": 1, "pattern": "^/"},
		"agent_id": {"type": "string"},
		"name": {"type": "string"},
		"description": {"type": "string"},
		"indicators": {"type": "array", "items": {"type": "string"}},
		"priority": {"type": "integer", "minimum": 0},
		"model": {"type": "string"},
		"temperature": {"type": "number", "minimum": 0, "maximum": 1},
		"instructions": {"type": "string"}
	},
	"required": ["endpoint"],
	"additionalProperties": false
}`
