package accountd

import (
	"errors"

	"github.com/swaptacular/accountd/internal/hydra"
	"github.com/swaptacular/accountd/internal/model"
	"github.com/swaptacular/accountd/internal/secrets"
)

var (
	// ErrEngineNotReady indicates the engine was used before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrBuilderUsed indicates a second Build on the same builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrMissingRedis indicates Build was called without a redis client.
	ErrMissingRedis = errors.New("redis client is required")
	// ErrMissingAccounts indicates Build was called without an account store.
	ErrMissingAccounts = errors.New("account store is required")
	// ErrMissingMailer indicates Build was called without a mailer.
	ErrMissingMailer = errors.New("mailer is required")
	// ErrInvalidCredentials indicates the email/password pair did not match
	// an account. Unknown email and wrong password are indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Re-exported backend sentinels, so engine callers can classify
	// failures without importing internal packages.

	// ErrNotFound indicates the requested account does not exist.
	ErrNotFound = model.ErrNotFound
	// ErrDuplicateEmail indicates the email is already bound to an account.
	ErrDuplicateEmail = model.ErrDuplicateEmail
	// ErrAuthServerUnavailable indicates the authorization server timed out
	// or answered outside 2xx.
	ErrAuthServerUnavailable = hydra.ErrUnavailable
	// ErrSecretStoreUnavailable indicates the ephemeral record store is
	// unreachable.
	ErrSecretStoreUnavailable = secrets.ErrStoreUnavailable
)
