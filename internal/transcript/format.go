package transcript

import (
	"fmt"
	"regexp"
	"strings"
)

// FormatTimestamp renders a millisecond offset as mm:ss, or hh:mm:ss once the
// offset reaches an hour. Negative or bogus offsets render as 00:00.
func FormatTimestamp(offsetMs int64) string {
	totalSeconds := int64(0)
	if offsetMs > 0 {
		totalSeconds = offsetMs / 1000
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// BuildTimestampedText renders chunks as "[mm:ss] text" lines joined by
// newlines. Empty input yields an empty string.
func BuildTimestampedText(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	lines := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		lines = append(lines, fmt.Sprintf("[%s] %s", FormatTimestamp(chunk.OffsetMs), chunk.Text))
	}
	return strings.Join(lines, "\n")
}

var markdownSpecials = regexp.MustCompile("([\\\\`*_\\[\\]()])")

// EscapeMarkdownInline backslash-escapes characters that would otherwise be
// interpreted as inline markdown by the panel renderer.
func EscapeMarkdownInline(text string) string {
	return markdownSpecials.ReplaceAllString(text, "\\$1")
}

// TimestampMarkdown renders chunks as a markdown bullet list with escaped
// text, one "- [mm:ss] text" entry per chunk.
func TimestampMarkdown(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	lines := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		lines = append(lines, fmt.Sprintf("- [%s] %s", FormatTimestamp(chunk.OffsetMs), EscapeMarkdownInline(chunk.Text)))
	}
	return strings.Join(lines, "\n")
}
