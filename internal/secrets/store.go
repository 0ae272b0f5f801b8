// Package secrets implements the short-lived, secret-keyed records that
// carry flow state between requests. Records live in Redis under
// "<prefix>:<secret>" hashes with an absolute TTL set at creation.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swaptacular/accountd/internal/random"
)

var (
	// ErrStoreUnavailable indicates the ephemeral backend is unreachable.
	// The enclosing request cannot proceed; there is no retry here.
	ErrStoreUnavailable = errors.New("secret store unavailable")
)

// Kind describes one record kind: its key prefix, the closed set of named
// fields every record of the kind must carry, and its lifetime. A record
// missing any of Fields is treated as absent.
type Kind struct {
	Prefix string
	Fields []string
	TTL    time.Duration
}

// Store persists TTL'd hash records keyed by server-generated secrets.
type Store struct {
	redis redis.UniversalClient
}

// New creates a Store backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(kind Kind, secret string) string {
	return kind.Prefix + ":" + secret
}

// Create writes a new record and returns its secret. The hash fields and the
// expiry are applied in one MULTI/EXEC so a concurrent reader never observes
// a half-written record.
func (s *Store) Create(ctx context.Context, kind Kind, fields map[string]string) (string, error) {
	values := make(map[string]string, len(kind.Fields))
	for _, name := range kind.Fields {
		value, ok := fields[name]
		if !ok {
			return "", fmt.Errorf("missing record field %q for prefix %q", name, kind.Prefix)
		}
		values[name] = value
	}

	secret, err := random.NewSecret()
	if err != nil {
		return "", err
	}

	key := s.key(kind, secret)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, kind.TTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return secret, nil
}

// Load returns the record's fields, or ok=false when the record does not
// exist, has expired, or is missing any configured field. The three cases
// are indistinguishable on purpose.
func (s *Store) Load(ctx context.Context, kind Kind, secret string) (map[string]string, bool, error) {
	values, err := s.redis.HGetAll(ctx, s.key(kind, secret)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(values) == 0 {
		return nil, false, nil
	}

	for _, name := range kind.Fields {
		if _, ok := values[name]; !ok {
			return nil, false, nil
		}
	}

	return values, true, nil
}

// Delete removes the record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, kind Kind, secret string) error {
	if err := s.redis.Del(ctx, s.key(kind, secret)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
