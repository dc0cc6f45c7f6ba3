package storage

import (
	"context"
	"errors"
)

// Storage is the durable key/value store behind the session and the guest
// cart. Values are opaque strings; callers own their encoding.
type Storage interface {
	// Get reports whether key exists along with its value.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	// SetMany writes all pairs or none of them.
	SetMany(ctx context.Context, values map[string]string) error
	// Remove deletes the keys. Missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error
}

var ErrEmptyKey = errors.New("storage key cannot be empty")

func checkKeys[V any](values map[string]V) error {
	for key := range values {
		if key == "" {
			return ErrEmptyKey
		}
	}

	return nil
}
