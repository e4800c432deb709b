package token

import "context"

// Storage is the durable client-side key/value store holding the session credentials.
// Get returns errors.ErrKeyNotFound for a missing key. Implementations must be safe for
// concurrent use; last write wins.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
