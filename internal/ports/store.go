package ports

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get for absent keys.
var ErrNotFound = errors.New("store: key not found")

// Store is namespaced key-value persistence backing queue state. It is a
// durability aid, not a transaction guard: callers swallow write failures and
// keep in-memory state authoritative for the running session.
type Store interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
