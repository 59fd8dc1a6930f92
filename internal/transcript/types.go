package transcript

import "strings"

// Chunk is one timed segment of a transcript. Offsets and durations are
// milliseconds from the start of the video, matching the Supadata payload.
type Chunk struct {
	Text       string `json:"text"`
	OffsetMs   int64  `json:"offset_ms"`
	DurationMs int64  `json:"duration_ms"`
	Lang       string `json:"lang,omitempty"`
}

// Data is the canonical transcript representation produced by Normalize.
// Chunks may be empty when the provider returned a flat text blob; in that
// case TimestampedText and PlainText hold the same value.
type Data struct {
	Chunks          []Chunk  `json:"chunks"`
	TimestampedText string   `json:"timestamped_text"`
	PlainText       string   `json:"plain_text"`
	Lang            string   `json:"lang,omitempty"`
	AvailableLangs  []string `json:"available_langs,omitempty"`
}

// HasText reports whether the transcript carries any usable text. A Data
// value without text is treated as invalid by the cache and the fetch path.
func (d *Data) HasText() bool {
	if d == nil {
		return false
	}
	return strings.TrimSpace(d.TimestampedText) != "" || strings.TrimSpace(d.PlainText) != ""
}

// TextForPrompt returns the text handed to the LLM: the timestamped variant
// when present, the plain text otherwise.
func (d *Data) TextForPrompt() string {
	if d == nil {
		return ""
	}
	if strings.TrimSpace(d.TimestampedText) != "" {
		return d.TimestampedText
	}
	return d.PlainText
}
