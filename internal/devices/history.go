// Package devices tracks the trusted-device history of an account: a
// bounded, ordered set of hashed device cookie values. A device found in the
// history lets a returning user skip the second verification factor.
package devices

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrHistoryUnavailable indicates the history backend is unreachable.
	ErrHistoryUnavailable = errors.New("device history unavailable")
)

// History stores per-account device hashes in a Redis sorted set scored by
// insertion time, trimmed to the most recent N entries. Only hashes are
// stored, never the raw cookie value.
type History struct {
	redis redis.UniversalClient
	size  int
}

// New creates a History bounded to size entries per account.
func New(redisClient redis.UniversalClient, size int) *History {
	return &History{redis: redisClient, size: size}
}

func (h *History) key(accountID int64) string {
	return "dev:" + strconv.FormatInt(accountID, 10)
}

// HashToken returns the stored form of a raw device token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Contains reports whether the device token is among the account's most
// recent trusted devices.
func (h *History) Contains(ctx context.Context, accountID int64, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	err := h.redis.ZScore(ctx, h.key(accountID), HashToken(token)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	return true, nil
}

// Add records the device token and trims entries beyond the most recent N.
// Insert and trim run in one MULTI/EXEC, so concurrent writers cannot grow
// the set past its bound.
func (h *History) Add(ctx context.Context, accountID int64, token string) error {
	if token == "" {
		return nil
	}

	key := h.key(accountID)
	_, err := h.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(time.Now().UnixNano()),
			Member: HashToken(token),
		})
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-h.size-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	return nil
}

// Clear drops the whole history, forgetting every trusted device. Used when
// credentials are invalidated.
func (h *History) Clear(ctx context.Context, accountID int64) error {
	if err := h.redis.Del(ctx, h.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	return nil
}
