package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginQuotaWindow = 30 * 24 * time.Hour

var (
	// ErrQuotaUnavailable indicates the quota backend is unreachable.
	ErrQuotaUnavailable = errors.New("login quota unavailable")
)

// LoginQuota caps the number of accepted logins per externally-visible
// subject inside a fixed monthly window. Over the cap, login acceptance is
// converted to rejection by the caller.
type LoginQuota struct {
	redis redis.UniversalClient
	max   int
}

// NewLoginQuota creates a quota with the given monthly cap. A cap of zero
// disables the quota.
func NewLoginQuota(redisClient redis.UniversalClient, max int) *LoginQuota {
	return &LoginQuota{redis: redisClient, max: max}
}

func (q *LoginQuota) key(subject string) string {
	return "lq:" + subject
}

// Allow bumps the subject's monthly counter and reports whether this login
// is still inside the cap.
func (q *LoginQuota) Allow(ctx context.Context, subject string) (bool, error) {
	if q.max <= 0 {
		return true, nil
	}

	count, err := registerFailureLua.Run(ctx, q.redis,
		[]string{q.key(subject)},
		loginQuotaWindow.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrQuotaUnavailable, err)
	}

	return count <= int64(q.max), nil
}
