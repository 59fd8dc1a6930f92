package keypool

import "context"

// APIKey is one Supadata credential. Keys are kept in the order the user
// registered them; that order drives the failover rotation.
type APIKey struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Secret        string `json:"secret"`
	IsRateLimited bool   `json:"is_rate_limited"`
}

// Store persists the credential pool and the active-key pointer so that
// rate-limit state survives restarts.
type Store interface {
	LoadKeys(ctx context.Context) ([]APIKey, error)
	SaveKeys(ctx context.Context, keys []APIKey) error
	ActiveKeyID(ctx context.Context) (string, error)
	SetActiveKeyID(ctx context.Context, id string) error
}
