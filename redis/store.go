package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
)

// Store implements statestore.Store on Redis with JSON-encoded values.
type Store struct {
	rdb       goredis.Cmdable
	keyPrefix string
	ttl       time.Duration
	scanCount int64
}

// NewStore creates a Store on rdb. Key prefix, state TTL and SCAN page
// size come from cfg.
func NewStore(rdb goredis.Cmdable, cfg Config) *Store {
	s := &Store{rdb: rdb, keyPrefix: cfg.KeyPrefix, ttl: cfg.StateTTL, scanCount: cfg.ScanCount}
	if s.scanCount <= 0 {
		s.scanCount = 100
	}
	return s
}

func (s *Store) fullKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

func (s *Store) trimKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.keyPrefix+":")
}

// Get decodes the JSON value under key. A missing key is reported as absent.
func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	raw, err := s.rdb.Get(ctx, s.fullKey(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("state store get %q: %w", key, err)
	}
	val, err := decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("state store decode %q: %w", key, err)
	}
	return val, true, nil
}

// Set encodes val as JSON and stores it under key.
func (s *Store) Set(ctx context.Context, key string, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("state store encode %q: %w", key, err)
	}
	if err := s.rdb.Set(ctx, s.fullKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("state store set %q: %w", key, err)
	}
	return nil
}

// Keys returns the sorted keys matching a Redis glob pattern.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	// SCAN may return a key more than once.
	seen := make(map[string]struct{})
	out := make([]string, 0)
	iter := s.rdb.Scan(ctx, 0, s.fullKey(pattern), s.scanCount).Iterator()
	for iter.Next(ctx) {
		k := s.trimKey(iter.Val())
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("state store keys %q: %w", pattern, err)
	}
	sort.Strings(out)
	return out, nil
}

// MultiGet fetches keys with a single MGET. Absent keys yield nil.
func (s *Store) MultiGet(ctx context.Context, keys []string) ([]any, error) {
	out := make([]any, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.fullKey(k)
	}
	raws, err := s.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("state store multiget: %w", err)
	}
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		val, err := decode(str)
		if err != nil {
			return nil, fmt.Errorf("state store decode %q: %w", keys[i], err)
		}
		out[i] = val
	}
	return out, nil
}

func decode(raw string) (any, error) {
	var val any
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return nil, err
	}
	return val, nil
}

// compile-time interface check
var _ statestore.Store = (*Store)(nil)
