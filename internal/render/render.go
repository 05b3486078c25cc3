// Package render turns Jules API payloads into the text shown to the agent.
//
// Every tool result is rendered in one of two [Format]s: markdown prose for a
// human-readable summary, or indented JSON that parses back to exactly the
// structured value returned alongside it. Text is bounded by [Truncate];
// structured values never are.
//
// All functions in this package are pure: the same payload and format always
// produce byte-identical output.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// CharacterLimit is the maximum number of characters (runes) of rendered
	// text before truncation.
	CharacterLimit = 25000

	// TruncationMarker is appended to text cut at [CharacterLimit].
	TruncationMarker = "\n...[truncated]"
)

const (
	// NoSources is the whole text of an empty source listing.
	NoSources = "No sources found."

	// NoSessions is the whole text of an empty session listing.
	NoSessions = "No sessions found."
)

// Format selects how a result is rendered.
type Format string

const (
	// FormatMarkdown renders section-headed prose.
	FormatMarkdown Format = "markdown"

	// FormatJSON renders 2-space indented JSON of the structured value.
	FormatJSON Format = "json"
)

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool {
	switch f {
	case FormatMarkdown, FormatJSON:
		return true
	}
	return false
}

// Formats lists the accepted format names in schema order.
func Formats() []any {
	return []any{string(FormatMarkdown), string(FormatJSON)}
}

// JSON encodes v as 2-space indented JSON without HTML escaping, so that
// decoding the result yields a value deep-equal to v.
func JSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("render: encode json: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Truncate bounds text to [CharacterLimit] runes. Longer text is cut to
// exactly the limit and [TruncationMarker] is appended. Truncate is
// idempotent.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= CharacterLimit {
		return text
	}
	n := 0
	for i := range text {
		if n == CharacterLimit {
			return text[:i] + TruncationMarker
		}
		n++
	}
	return text
}

// Render produces the bounded text for a result. In [FormatJSON] the text is
// the JSON encoding of structured; otherwise prose is called. An unknown
// format renders as markdown.
func Render(f Format, structured any, prose func() string) (string, error) {
	if f == FormatJSON {
		text, err := JSON(structured)
		if err != nil {
			return "", err
		}
		return Truncate(text), nil
	}
	return Truncate(prose()), nil
}
