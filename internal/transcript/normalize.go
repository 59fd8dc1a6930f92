package transcript

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// Normalization failures are payload-shape errors. The fetch path never
// retries them against another credential.
var (
	ErrInvalidPayload      = errors.New("transcript payload is not a structured object")
	ErrEmptyContent        = errors.New("transcript content is empty")
	ErrUnrecognizedContent = errors.New("transcript content has an unrecognized shape")
)

// Normalize converts a raw Supadata payload into the canonical Data form.
// The payload may arrive wrapped in a {"result": {...}} envelope (async job
// results do this); the envelope is unwrapped when its content looks usable.
// Two content shapes are accepted: a segmented chunk array and a flat string.
func Normalize(raw []byte) (*Data, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return nil, ErrInvalidPayload
	}

	effective := payload
	if result, ok := payload["result"].(map[string]any); ok && hasUsableContent(result) {
		effective = result
	}

	lang := cleanLang(effective["lang"])
	availableLangs := cleanLangList(effective["availableLangs"])

	switch content := effective["content"].(type) {
	case []any:
		chunks := make([]Chunk, 0, len(content))
		for _, el := range content {
			record, ok := el.(map[string]any)
			if !ok {
				continue
			}
			text, _ := record["text"].(string)
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				Text:       text,
				OffsetMs:   coerceMillis(record["offset"]),
				DurationMs: coerceMillis(record["duration"]),
				Lang:       cleanLang(record["lang"]),
			})
		}
		if len(chunks) == 0 {
			return nil, ErrEmptyContent
		}

		plainParts := make([]string, 0, len(chunks))
		for _, chunk := range chunks {
			plainParts = append(plainParts, chunk.Text)
		}
		plainText := strings.TrimSpace(strings.Join(plainParts, " "))

		data := &Data{
			Chunks:          chunks,
			TimestampedText: BuildTimestampedText(chunks),
			PlainText:       plainText,
			Lang:            lang,
			AvailableLangs:  availableLangs,
		}
		fillDetectedLang(data)
		return data, nil

	case string:
		text := strings.TrimSpace(content)
		if text == "" {
			return nil, ErrEmptyContent
		}
		data := &Data{
			Chunks:          []Chunk{},
			TimestampedText: text,
			PlainText:       text,
			Lang:            lang,
			AvailableLangs:  availableLangs,
		}
		fillDetectedLang(data)
		return data, nil

	default:
		return nil, ErrUnrecognizedContent
	}
}

// hasUsableContent reports whether a result envelope carries content in one
// of the accepted shapes. Envelopes without it are passed through untouched.
func hasUsableContent(result map[string]any) bool {
	switch result["content"].(type) {
	case []any, string:
		return true
	default:
		return false
	}
}

// coerceMillis converts the provider's loosely typed offset/duration values
// to whole milliseconds, defaulting to 0 for anything non-finite.
func coerceMillis(v any) int64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0
		}
		return int64(parsed)
	default:
		return 0
	}
}

// cleanLang trims and validates a provider language code, returning "" for
// anything that is not a parseable BCP 47 tag.
func cleanLang(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if _, err := language.Parse(s); err != nil {
		return ""
	}
	return s
}

func cleanLangList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	ret := make([]string, 0, len(list))
	for _, el := range list {
		if lang := cleanLang(el); lang != "" {
			ret = append(ret, lang)
		}
	}
	if len(ret) == 0 {
		return nil
	}
	return ret
}

// fillDetectedLang falls back to statistical language detection when the
// provider payload carried no usable language code.
func fillDetectedLang(data *Data) {
	if data.Lang != "" || strings.TrimSpace(data.PlainText) == "" {
		return
	}
	if iso := whatlanggo.DetectLang(data.PlainText).Iso6391(); iso != "" {
		data.Lang = iso
	}
}
