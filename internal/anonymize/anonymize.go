// Package anonymize strips PII from payloads before they leave the service.
package anonymize

import (
	"encoding/json"
	"regexp"
)

type pattern struct {
	re          *regexp.Regexp
	replacement string
}

// Patterns are applied in a fixed order so output is stable.
var patterns = []pattern{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL REDACTED]"},
	{regexp.MustCompile(`\b(\+\d{1,2}\s?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`), "[PHONE REDACTED]"},
	{regexp.MustCompile(`\b\d{3}[-]?\d{2}[-]?\d{4}\b`), "[SSN REDACTED]"},
	{regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`), "[CREDIT CARD REDACTED]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP ADDRESS REDACTED]"},
}

// Text redacts sensitive substrings in plain text.
func Text(text string) string {
	if text == "" {
		return text
	}
	for _, p := range patterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// Data redacts sensitive values in a payload. JSON documents are walked
// recursively so string values inside objects and arrays are scrubbed; plain
// text falls back to Text.
func Data(data string) string {
	var parsed interface{}
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return Text(data)
	}

	switch parsed.(type) {
	case map[string]interface{}, []interface{}:
		scrubbed := walk(parsed)
		out, err := json.Marshal(scrubbed)
		if err != nil {
			return Text(data)
		}
		return string(out)
	default:
		// Scalars round-trip as text.
		return Text(data)
	}
}

func walk(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return Text(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = walk(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = walk(item)
		}
		return out
	default:
		return val
	}
}
