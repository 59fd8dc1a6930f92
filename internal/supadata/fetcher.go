package supadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohamed-oubenma/smarTube/internal/keypool"
	"github.com/mohamed-oubenma/smarTube/internal/transcript"
	"github.com/mohamed-oubenma/smarTube/pkg/log"
)

// Fetcher runs the credential failover cycle: pick a key, issue the request,
// classify the outcome, and either finish or rotate to the next untried key.
type Fetcher struct {
	client *Client
	keys   *keypool.Manager
}

func NewFetcher(client *Client, keys *keypool.Manager) *Fetcher {
	return &Fetcher{
		client: client,
		keys:   keys,
	}
}

// Fetch acquires and normalizes a transcript for one video. A cycle performs
// at most poolSize credential attempts; rate-limit rejections flag the key
// and rotate, transport failures rotate without flagging, and everything
// else terminates the cycle immediately.
func (f *Fetcher) Fetch(ctx context.Context, videoURL string) (*transcript.Data, error) {
	tried := make(map[string]bool)
	poolSize := f.keys.Size()

	key, err := f.keys.Select(ctx, tried)
	if err != nil {
		return nil, wrapPoolError(err)
	}

	for attemptCycle := 0; ; attemptCycle++ {
		tried[key.ID] = true
		log.Info("Attempting Supadata API call with key %s (attempt %d)", keyLabel(key), attemptCycle+1)

		payload, err := f.client.RequestTranscript(ctx, videoURL, key.Secret)
		if err == nil {
			data, normErr := transcript.Normalize(payload)
			if normErr != nil {
				// Payload shape problems are not credential-specific.
				return nil, newErrorWithCause(ErrInvalidPayload, "could not extract transcript content from provider response", normErr)
			}
			if markErr := f.keys.MarkSucceeded(ctx, key.ID); markErr != nil {
				log.Warn("Failed to clear rate-limit flag on key %s: %v", keyLabel(key), markErr)
			}
			log.Info("Transcript fetched successfully with key %s", keyLabel(key))
			return data, nil
		}

		fetchErr, ok := AsFetchError(err)
		if !ok {
			return nil, err
		}

		switch fetchErr.Type {
		case ErrRateLimited:
			log.Warn("Supadata key %s is rate-limited: %s", keyLabel(key), fetchErr.Message)
			next, found, poolErr := f.keys.MarkRateLimited(ctx, key.ID, tried)
			if poolErr != nil {
				return nil, poolErr
			}
			if !found || attemptCycle >= poolSize-1 {
				return nil, newErrorWithCause(ErrKeysExhausted, "all Supadata API keys are currently rate-limited or exhausted", keypool.ErrAllKeysExhausted)
			}
			key = next

		case ErrTransport:
			log.Warn("Transport error with Supadata key %s, trying next key: %v", keyLabel(key), fetchErr.Cause)
			next, found, poolErr := f.keys.NextCandidate(ctx, key.ID, tried)
			if poolErr != nil {
				return nil, poolErr
			}
			if !found || attemptCycle >= poolSize-1 {
				return nil, fmt.Errorf("transcript request failed after trying available keys: %w", err)
			}
			key = next

		default:
			return nil, err
		}
	}
}

// wrapPoolError maps keypool selection failures into the fetch taxonomy while
// keeping errors.Is against the keypool sentinels working.
func wrapPoolError(err error) error {
	switch {
	case errors.Is(err, keypool.ErrNoKeysConfigured):
		return newErrorWithCause(ErrNoKeys, "no Supadata API keys configured", err)
	case errors.Is(err, keypool.ErrAllKeysExhausted):
		return newErrorWithCause(ErrKeysExhausted, "all Supadata API keys are currently rate-limited or exhausted", err)
	default:
		return err
	}
}

func keyLabel(key keypool.APIKey) string {
	if key.Name != "" {
		return key.Name
	}
	return key.ID
}
