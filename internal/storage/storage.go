// Package storage provides durable per-session key/value state.
// Values are opaque bytes; callers own the encoding.
package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("key not found")
	ErrInvalidKey = errors.New("invalid namespace or key")
)

// Storage stores values under a namespace (typically a session id) and key.
type Storage interface {
	// Get returns ErrNotFound when nothing is stored under the key.
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, namespace, key string) error
}
