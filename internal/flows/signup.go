package flows

import (
	"context"
	"errors"

	"github.com/swaptacular/accountd/internal/devices"
	"github.com/swaptacular/accountd/internal/limiters"
	"github.com/swaptacular/accountd/internal/logger"
	"github.com/swaptacular/accountd/internal/model"
	"github.com/swaptacular/accountd/internal/random"
	"github.com/swaptacular/accountd/internal/secrets"
	"github.com/swaptacular/accountd/mailer"
	"github.com/swaptacular/accountd/password"
)

// SessionRevoker invalidates every authorization-server session of a
// subject. A password change proves ownership and forces all devices out.
type SessionRevoker interface {
	RevokeLoginSessions(ctx context.Context, subject string) error
}

// Signup governs new registrations and password recoveries. Both journeys
// share the same record kind: a "recover" field tells them apart.
type Signup struct {
	secrets         *secrets.Store
	accounts        model.AccountStore
	hasher          *password.Hasher
	mail            mailer.Mailer
	devices         *devices.History
	recordFailures  *limiters.Throttle
	accountFailures *limiters.Throttle
	sessions        SessionRevoker
	cfg             Config
	log             *logger.Logger
}

// NewSignup wires the signup/recovery flow. sessions may be nil when no
// authorization server is attached (tests).
func NewSignup(
	secretStore *secrets.Store,
	accounts model.AccountStore,
	hasher *password.Hasher,
	mail mailer.Mailer,
	deviceHistory *devices.History,
	recordFailures, accountFailures *limiters.Throttle,
	sessions SessionRevoker,
	cfg Config,
	log *logger.Logger,
) *Signup {
	return &Signup{
		secrets:         secretStore,
		accounts:        accounts,
		hasher:          hasher,
		mail:            mail,
		devices:         deviceHistory,
		recordFailures:  recordFailures,
		accountFailures: accountFailures,
		sessions:        sessions,
		cfg:             cfg,
		log:             log,
	}
}

// StartSignupRequest asks for a signup or password-recovery mail.
type StartSignupRequest struct {
	Email       string
	Recover     bool // password recovery instead of a fresh registration
	DeviceToken string
}

// StartSignupResult reports only local validation problems. Whether a mail
// was actually sent is deliberately not observable: a recovery request for
// an unknown email and a signup for a taken email both look exactly like
// success.
type StartSignupResult struct {
	Outcome Outcome
	Message string
}

// Start validates the address and sends the matching mail. Nothing durable
// changes here.
func (f *Signup) Start(ctx context.Context, req StartSignupRequest) (StartSignupResult, error) {
	if isInvalidEmail(req.Email) {
		return StartSignupResult{Outcome: OutcomeInvalid, Message: "The email address is invalid."}, nil
	}

	_, err := f.accounts.GetByEmail(ctx, req.Email)
	switch {
	case err == nil:
		if !req.Recover {
			// Taken email: only the mailbox owner learns about it.
			if err := f.mail.Send(ctx, mailer.DuplicateRegistration(req.Email, f.cfg.SiteTitle)); err != nil {
				return StartSignupResult{}, err
			}
			return StartSignupResult{Outcome: OutcomeOK}, nil
		}
	case errors.Is(err, model.ErrNotFound):
		if req.Recover {
			// Unknown email: silently drop, indistinguishable from success.
			return StartSignupResult{Outcome: OutcomeOK}, nil
		}
	default:
		return StartSignupResult{}, err
	}

	recover := "0"
	if req.Recover {
		recover = "1"
	}
	secret, err := f.secrets.Create(ctx, signupKind(f.cfg), map[string]string{
		fieldEmail:   req.Email,
		fieldRecover: recover,
		fieldDevice:  req.DeviceToken,
	})
	if err != nil {
		return StartSignupResult{}, err
	}

	var msg mailer.Message
	if req.Recover {
		msg = mailer.ChangePassword(req.Email, f.cfg.ChangePasswordLinkBase+"/"+secret)
	} else {
		msg = mailer.ConfirmRegistration(req.Email, f.cfg.SignupLinkBase+"/"+secret)
	}
	if err := f.mail.Send(ctx, msg); err != nil {
		return StartSignupResult{}, err
	}

	return StartSignupResult{Outcome: OutcomeOK}, nil
}

// AcceptSignupRequest submits the chosen password for a pending signup or
// recovery.
type AcceptSignupRequest struct {
	Secret       string
	Password     string
	Confirm      string
	RecoveryCode string // required for recovery when recovery codes are in use
}

// AcceptSignupResult is the terminal state of the flow.
type AcceptSignupResult struct {
	Outcome   Outcome
	Message   string
	AccountID int64
	Created   bool
	// RecoveryCode is set exactly once, on a fresh registration with
	// recovery codes enabled. It is never recoverable afterwards.
	RecoveryCode string
}

// Accept consumes the record and commits the durable mutation: a fresh
// Account for a registration, or new credential material for a recovery.
func (f *Signup) Accept(ctx context.Context, req AcceptSignupRequest) (AcceptSignupResult, error) {
	if msg := validatePassword(f.cfg, req.Password, req.Confirm); msg != "" {
		return AcceptSignupResult{Outcome: OutcomeInvalid, Message: msg}, nil
	}

	kind := signupKind(f.cfg)
	record, ok, err := f.secrets.Load(ctx, kind, req.Secret)
	if err != nil {
		return AcceptSignupResult{}, err
	}
	if !ok {
		return AcceptSignupResult{Outcome: OutcomeExpired}, nil
	}

	if record[fieldRecover] == "1" {
		return f.acceptRecovery(ctx, kind, req, record)
	}
	return f.acceptRegistration(ctx, kind, req, record)
}

func (f *Signup) acceptRegistration(ctx context.Context, kind secrets.Kind, req AcceptSignupRequest, record map[string]string) (AcceptSignupResult, error) {
	salt, err := f.hasher.NewSalt()
	if err != nil {
		return AcceptSignupResult{}, err
	}
	digest, err := f.hasher.Hash(salt, req.Password)
	if err != nil {
		return AcceptSignupResult{}, err
	}

	var recoveryCode, recoveryHash string
	if f.cfg.UseRecoveryCode {
		recoveryCode, err = random.NewRecoveryCode()
		if err != nil {
			return AcceptSignupResult{}, err
		}
		recoveryHash, err = f.hasher.Hash(salt, random.NormalizeRecoveryCode(recoveryCode))
		if err != nil {
			return AcceptSignupResult{}, err
		}
	}

	account, err := f.accounts.Create(ctx, model.Account{
		Email:            record[fieldEmail],
		Salt:             salt,
		PasswordHash:     digest,
		RecoveryCodeHash: recoveryHash,
		TwoFactorLogin:   f.cfg.TwoFactorLogin,
	})
	if err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			// Lost the race against a concurrent signup for the same email.
			if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
				return AcceptSignupResult{}, err
			}
			return AcceptSignupResult{Outcome: OutcomeDuplicate}, nil
		}
		return AcceptSignupResult{}, err
	}

	// The browser that completed the registration is trusted from the
	// start; the first login from it skips the second factor.
	if err := f.devices.Add(ctx, account.ID, record[fieldDevice]); err != nil {
		return AcceptSignupResult{}, err
	}

	if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
		return AcceptSignupResult{}, err
	}

	return AcceptSignupResult{
		Outcome:      OutcomeOK,
		AccountID:    account.ID,
		Created:      true,
		RecoveryCode: recoveryCode,
	}, nil
}

func (f *Signup) acceptRecovery(ctx context.Context, kind secrets.Kind, req AcceptSignupRequest, record map[string]string) (AcceptSignupResult, error) {
	account, err := f.accounts.GetByEmail(ctx, record[fieldEmail])
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// The account disappeared while the link was in flight.
			if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
				return AcceptSignupResult{}, err
			}
			return AcceptSignupResult{Outcome: OutcomeExpired}, nil
		}
		return AcceptSignupResult{}, err
	}

	normalized := random.NormalizeRecoveryCode(req.RecoveryCode)
	checkRecoveryCode := f.cfg.UseRecoveryCode && account.RecoveryCodeHash != ""
	if checkRecoveryCode {
		match, err := f.hasher.Verify(account.Salt, normalized, account.RecoveryCodeHash)
		if err != nil {
			return AcceptSignupResult{}, err
		}
		if !match {
			count, err := f.recordFailures.RegisterFailure(ctx, req.Secret)
			if err != nil {
				return AcceptSignupResult{}, err
			}
			if limiters.Exceeded(count, f.cfg.MaxAttempts) {
				if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
					return AcceptSignupResult{}, err
				}
				return AcceptSignupResult{Outcome: OutcomeExceeded}, nil
			}
			return AcceptSignupResult{Outcome: OutcomeWrongCode, Message: "Incorrect recovery code."}, nil
		}
	}

	salt, err := f.hasher.NewSalt()
	if err != nil {
		return AcceptSignupResult{}, err
	}
	digest, err := f.hasher.Hash(salt, req.Password)
	if err != nil {
		return AcceptSignupResult{}, err
	}

	// The recovery code digest depends on the salt, so it is recomputed
	// from the just-verified submission. Without a code in play the stored
	// value is carried through unused.
	recoveryHash := account.RecoveryCodeHash
	if checkRecoveryCode {
		recoveryHash, err = f.hasher.Hash(salt, normalized)
		if err != nil {
			return AcceptSignupResult{}, err
		}
	}

	if err := f.accounts.UpdatePassword(ctx, account.ID, salt, digest, recoveryHash); err != nil {
		return AcceptSignupResult{}, err
	}

	// A successful password change proves ownership: lift any accumulated
	// verification-failure lockout and force every device out.
	if err := f.accountFailures.Reset(ctx, accountKey(account.ID)); err != nil {
		return AcceptSignupResult{}, err
	}
	if err := f.devices.Clear(ctx, account.ID); err != nil {
		return AcceptSignupResult{}, err
	}
	if f.sessions != nil {
		if err := f.sessions.RevokeLoginSessions(ctx, SubjectFor(account.ID)); err != nil {
			f.log.Warn("failed to revoke login sessions after password change",
				"account_id", account.ID, "error", err)
		}
	}

	if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
		return AcceptSignupResult{}, err
	}

	return AcceptSignupResult{Outcome: OutcomeOK, AccountID: account.ID}, nil
}
