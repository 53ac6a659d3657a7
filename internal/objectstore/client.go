// Package objectstore wraps the object store (§4.1 of spec.md) behind a
// thin interface: get-json, put-json, delete, list-by-prefix. No
// compare-and-swap is assumed; callers that need single-winner semantics
// (the global lock, the claim protocol) layer a settle-delay confirmation
// read on top, per spec.md's design notes.
package objectstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/scfuzzbench/runcoord/internal/coord"
)

// Client is the object-store primitive every coordination package is built
// on. NotFound is represented as (nil, false, nil) rather than an error,
// since it is never fatal and is interpreted semantically by callers.
type Client interface {
	// Get returns the raw payload for key, or found=false if absent.
	Get(ctx context.Context, key string) (payload []byte, found bool, err error)
	// Put writes payload unconditionally (overwrite), content type
	// application/json.
	Put(ctx context.Context, key string, payload []byte) error
	// Delete removes key, tolerating absence.
	Delete(ctx context.Context, key string) error
	// List returns every key under prefix, paginated internally.
	List(ctx context.Context, prefix string) ([]string, error)
}

// GetJSON fetches key and unmarshals it into out. Returns found=false
// without error when the object is absent.
func GetJSON(ctx context.Context, c Client, key string, out interface{}) (found bool, err error) {
	raw, found, err := c.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// A malformed payload is treated as absent by scanners (spec §7);
		// callers that need to distinguish this call Get directly.
		return false, fmt.Errorf("%w: unmarshal %s: %v", coord.ErrFatal, key, err)
	}
	return true, nil
}

// PutJSON marshals in and writes it to key.
func PutJSON(ctx context.Context, c Client, key string, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", coord.ErrFatal, key, err)
	}
	return c.Put(ctx, key, raw)
}
