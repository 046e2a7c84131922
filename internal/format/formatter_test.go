package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ==========================
// Mode Parsing Tests
// ==========================

func TestParseFormatType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected FormatType
	}{
		{"auto", "auto", FormatAuto},
		{"bullets alias", "bullets", FormatBullet},
		{"bullet_points", "bullet_points", FormatBullet},
		{"paragraph", "paragraph", FormatParagraph},
		{"json", "json", FormatJSON},
		{"raw", "raw", FormatRaw},
		{"unknown falls back to auto", "fancy", FormatAuto},
		{"empty falls back to auto", "", FormatAuto},
		{"case insensitive", "JSON", FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseFormatType(tt.input))
		})
	}
}

// ==========================
// Core Formatting Tests
// ==========================

func TestFormat_EmptyInput(t *testing.T) {
	assert.Equal(t, "No response received.", Format("", FormatAuto))
	assert.Equal(t, "No response received.", Format("   \n ", FormatRaw))
}

func TestFormat_Raw(t *testing.T) {
	assert.Equal(t, "hello\nworld", Format("  hello\nworld \n", FormatRaw))
}

func TestFormat_Paragraph(t *testing.T) {
	input := "First line\ncontinues here.\n\nSecond paragraph\nalso wraps."
	expected := "First line continues here.\n\nSecond paragraph also wraps."
	assert.Equal(t, expected, Format(input, FormatParagraph))
}

func TestFormat_Bullets(t *testing.T) {
	input := "Revenue grew fast.\n\nCosts stayed flat."
	expected := "• Revenue grew fast.\n\n• Costs stayed flat."
	assert.Equal(t, expected, Format(input, FormatBullet))
}

func TestFormat_BulletsIdempotent(t *testing.T) {
	input := "• Revenue grew fast.\n\n• Costs stayed flat."
	once := Format(input, FormatBullet)
	assert.Equal(t, once, Format(once, FormatBullet))
	assert.Equal(t, input, once)
}

func TestFormat_BulletsPreservesExistingGlyphs(t *testing.T) {
	input := "- first point\n- second point"
	assert.Equal(t, input, Format(input, FormatBullet))
}

func TestFormat_JSON(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", Format(`{"a": 1}`, FormatJSON))
}

func TestFormat_JSONInvalidReturnsOriginal(t *testing.T) {
	input := "{not json at all"
	assert.Equal(t, input, Format(input, FormatJSON))
}

func TestFormat_JSONNoHTMLEscaping(t *testing.T) {
	out := Format(`{"q": "a < b && c > d"}`, FormatJSON)
	assert.Contains(t, out, "a < b && c > d")
}

// ==========================
// Auto Detection Tests
// ==========================

func TestFormat_AutoDetection(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "object looks like json",
			input:    `{"x": true}`,
			expected: "{\n  \"x\": true\n}",
		},
		{
			name:     "array looks like json",
			input:    `[1, 2]`,
			expected: "[\n  1,\n  2\n]",
		},
		{
			name:     "existing bullets stay bullets",
			input:    "• one\n• two",
			expected: "• one\n• two",
		},
		{
			name:     "many lines become bullets",
			input:    "one\n\ntwo\n\nthree",
			expected: "• one\n\n• two\n\n• three",
		},
		{
			name:     "short prose becomes a paragraph",
			input:    "single idea\nsplit over two lines",
			expected: "single idea split over two lines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.input, FormatAuto))
		})
	}
}
