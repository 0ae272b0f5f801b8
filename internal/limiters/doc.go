// Package limiters implements the Redis-backed failure counters that guard
// secret-code verification and login acceptance: a generic attempt throttle
// with a fixed TTL window, a longer-lived per-account failure counter, and
// the monthly login quota.
package limiters
