package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrThrottleUnavailable indicates the counter backend is unreachable.
	ErrThrottleUnavailable = errors.New("attempt throttle unavailable")
)

// registerFailureLua increments a failure counter, arming its TTL only when
// the counter is first created. Doing both in one script keeps the window
// fixed: later failures never extend it.
// KEYS[1] = counter key, ARGV[1] = window in milliseconds.
var registerFailureLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// Throttle counts verification failures per subject key inside a fixed
// TTL window.
type Throttle struct {
	redis  redis.UniversalClient
	prefix string
	window time.Duration
}

// NewThrottle creates a throttle whose counters live under prefix and
// expire after window. The window must be at least as long as the life of
// the records it protects, so a counter cannot reset before its record does.
func NewThrottle(redisClient redis.UniversalClient, prefix string, window time.Duration) *Throttle {
	return &Throttle{redis: redisClient, prefix: prefix, window: window}
}

func (t *Throttle) key(subject string) string {
	return t.prefix + ":" + subject
}

// RegisterFailure atomically increments the subject's failure counter and
// returns the new count.
func (t *Throttle) RegisterFailure(ctx context.Context, subject string) (int64, error) {
	count, err := registerFailureLua.Run(ctx, t.redis,
		[]string{t.key(subject)},
		t.window.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return count, nil
}

// Exceeded reports whether a count returned by RegisterFailure is past the
// allowed maximum. Once true, the caller must delete the associated record
// and treat the flow as terminally dead.
func Exceeded(count int64, max int) bool {
	return count > int64(max)
}

// Count reads the subject's current failure count without touching it. A
// missing counter reads as zero.
func (t *Throttle) Count(ctx context.Context, subject string) (int64, error) {
	count, err := t.redis.Get(ctx, t.key(subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return count, nil
}

// Reset clears the subject's counter. Used when a successful verification or
// password change proves ownership and lifts any accumulated budget.
func (t *Throttle) Reset(ctx context.Context, subject string) error {
	if err := t.redis.Del(ctx, t.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}
