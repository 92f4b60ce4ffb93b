// Package statestore defines the minimal key-value contract shared by the
// reducer dispatcher and KEYS query nodes, plus an in-memory implementation.
//
// Implementations backed by real engines live in their own packages
// (see the redis package) so the core does not depend on a driver.
package statestore

import (
	"context"
)

// Store is the state-store collaborator.
//
// Only single-key Get/Set atomicity is assumed. Values are opaque to the
// store; implementations that serialize them must document what survives
// the round trip.
type Store interface {
	// Get returns the value under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (val any, ok bool, err error)
	// Set stores val under key, replacing any previous value.
	Set(ctx context.Context, key string, val any) error
	// Keys returns every key matching a glob pattern, sorted.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// MultiGet returns one value per key, in order. Absent keys yield nil.
	MultiGet(ctx context.Context, keys []string) ([]any, error)
}
