package service

import (
	"errors"

	"github.com/mohamed-oubenma/smarTube/internal/gemini"
	"github.com/mohamed-oubenma/smarTube/internal/supadata"
)

// APIKeysMissing is the sentinel the panel recognises to show its key-setup
// prompt. It must pass through error mapping verbatim.
const APIKeysMissing = "API_KEYS_MISSING"

var (
	// ErrAPIKeysMissing signals that no Gemini credential is configured.
	ErrAPIKeysMissing = errors.New(APIKeysMissing)

	// ErrEmptyTranscript signals a transcript with no usable text.
	ErrEmptyTranscript = errors.New("received empty or invalid transcript from Supadata")
)

// DeriveErrorMessage maps an action or Q&A failure to the message shown in
// the panel. The APIKeysMissing sentinel passes through untouched.
func DeriveErrorMessage(err error) string {
	const defaultMessage = "Failed to generate response."
	if err == nil {
		return defaultMessage
	}

	if errors.Is(err, ErrAPIKeysMissing) {
		return APIKeysMissing
	}

	if fetchErr, ok := supadata.AsFetchError(err); ok {
		switch fetchErr.Type {
		case supadata.ErrNoKeys:
			// An empty pool is the same configuration problem as a missing
			// Gemini key; the panel shows its key-setup prompt on this.
			return APIKeysMissing
		case supadata.ErrKeysExhausted:
			// Exhaustion is already a complete panel-facing sentence.
			return fetchErr.Message
		}
		return "Failed to fetch transcript: " + fetchErr.Message
	}

	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) {
		return "Failed to fetch response from Gemini: " + apiErr.Error()
	}
	if errors.Is(err, gemini.ErrEmptyResponse) {
		return "Failed to fetch response from Gemini: " + err.Error()
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return defaultMessage
}
