// Package session provides the durable, reload-surviving storage the
// engine keeps its per-session blobs in: the credential, the active
// coupon, and a pending checkout draft. Every record is written as one
// complete JSON document under a fixed key, so a concurrent reader (a
// second tab on the same session) never observes a torn write.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no value is stored under a key. A miss
// is a normal outcome, not a fault.
var ErrNotFound = errors.New("session: key not found")

// Store is the durable key/value contract. Implementations must make
// Write atomic per key: a reader sees either the previous complete
// document or the new one, never a mix.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ReadJSON reads the document stored under key and unmarshals it into
// dst. Returns ErrNotFound when the key is absent.
func ReadJSON(ctx context.Context, s Store, key string, dst any) error {
	data, err := s.Read(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode session record %q: %w", key, err)
	}
	return nil
}

// WriteJSON marshals v and stores it as one complete document under key.
func WriteJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session record %q: %w", key, err)
	}
	return s.Write(ctx, key, data)
}
