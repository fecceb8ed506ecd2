package kv

import "context"

// Well-known keys used by the client core. Values are whole-value string
// blobs; a write always replaces the previous value in full.
const (
	KeyToken  = "token"
	KeyUser   = "user"
	KeyColors = "COLORS"
)

// Store is durable key-value persistence for session tokens and user
// preferences. An absent key is a valid "never set" state, not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
