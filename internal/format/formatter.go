// Package format renders raw model output into display-ready text.
package format

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// FormatType selects how a model response is rendered.
type FormatType string

const (
	FormatAuto      FormatType = "auto"
	FormatBullet    FormatType = "bullet_points"
	FormatParagraph FormatType = "paragraph"
	FormatJSON      FormatType = "json"
	FormatRaw       FormatType = "raw"
)

// ParseFormatType maps a request string onto a FormatType, defaulting to auto.
func ParseFormatType(s string) FormatType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullet_points", "bullets", "bullet":
		return FormatBullet
	case "paragraph":
		return FormatParagraph
	case "json":
		return FormatJSON
	case "raw":
		return FormatRaw
	default:
		return FormatAuto
	}
}

var bulletLineRe = regexp.MustCompile(`(?m)^\s*[•\-\*]\s`)

// Format renders text according to the requested mode. It never fails: inputs
// that cannot be parsed for a given mode come back unchanged.
func Format(text string, mode FormatType) string {
	if strings.TrimSpace(text) == "" {
		return "No response received."
	}

	text = strings.TrimSpace(text)

	switch mode {
	case FormatRaw:
		return text
	case FormatBullet:
		return formatBulletPoints(text)
	case FormatParagraph:
		return formatParagraphs(text)
	case FormatJSON:
		return formatJSON(text)
	default:
		return Format(text, detectFormat(text))
	}
}

// detectFormat picks a concrete mode for auto requests. Predicates are
// ordered: JSON shape first, then an existing bullet glyph, then line count.
func detectFormat(text string) FormatType {
	if (strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}")) ||
		(strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]")) {
		return FormatJSON
	}
	if bulletLineRe.MatchString(text) {
		return FormatBullet
	}
	if strings.Count(text, "\n") > 2 {
		return FormatBullet
	}
	return FormatParagraph
}

// formatBulletPoints turns paragraphs into bullet items. Text that already
// carries bullet glyphs is left alone, which makes the operation idempotent.
func formatBulletPoints(text string) string {
	if bulletLineRe.MatchString(text) {
		return text
	}

	var bullets []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(current) > 0 {
				bullets = append(bullets, "• "+strings.Join(current, " "))
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		bullets = append(bullets, "• "+strings.Join(current, " "))
	}

	return strings.Join(bullets, "\n\n")
}

var paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)

// formatParagraphs collapses single newlines inside each paragraph and keeps
// one blank line between paragraphs.
func formatParagraphs(text string) string {
	var paragraphs []string
	for _, para := range paragraphSplitRe.Split(text, -1) {
		para = strings.TrimSpace(strings.ReplaceAll(para, "\n", " "))
		if para != "" {
			paragraphs = append(paragraphs, para)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// formatJSON re-indents a JSON document with two spaces. Unparseable input is
// returned as-is.
func formatJSON(text string) string {
	var parsed interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return text
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(parsed); err != nil {
		return text
	}
	return strings.TrimRight(buf.String(), "\n")
}
