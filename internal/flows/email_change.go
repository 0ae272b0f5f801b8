package flows

import (
	"context"
	"errors"
	"strconv"

	"github.com/swaptacular/accountd/internal/devices"
	"github.com/swaptacular/accountd/internal/limiters"
	"github.com/swaptacular/accountd/internal/logger"
	"github.com/swaptacular/accountd/internal/model"
	"github.com/swaptacular/accountd/internal/random"
	"github.com/swaptacular/accountd/internal/secrets"
	"github.com/swaptacular/accountd/mailer"
)

// EmailChange moves an account to a new email address. The request must
// prove ownership twice over: the current password plus either a trusted
// device or the recovery code, and the new address must follow a
// confirmation link before anything durable changes.
type EmailChange struct {
	secrets         *secrets.Store
	accounts        model.AccountStore
	hasher          passwordVerifier
	mail            mailer.Mailer
	devices         *devices.History
	accountFailures *limiters.Throttle
	cfg             Config
	log             *logger.Logger
}

// passwordVerifier is the slice of password.Hasher the flow needs.
type passwordVerifier interface {
	Verify(salt, plaintext, digest string) (bool, error)
}

// NewEmailChange wires the email change flow.
func NewEmailChange(
	secretStore *secrets.Store,
	accounts model.AccountStore,
	hasher passwordVerifier,
	mail mailer.Mailer,
	deviceHistory *devices.History,
	accountFailures *limiters.Throttle,
	cfg Config,
	log *logger.Logger,
) *EmailChange {
	return &EmailChange{
		secrets:         secretStore,
		accounts:        accounts,
		hasher:          hasher,
		mail:            mail,
		devices:         deviceHistory,
		accountFailures: accountFailures,
		cfg:             cfg,
		log:             log,
	}
}

// StartEmailChangeRequest asks for a confirmation mail to the new address.
type StartEmailChangeRequest struct {
	AccountID    int64
	Password     string
	NewEmail     string
	RecoveryCode string // required when the device is not trusted
	DeviceToken  string
}

// StartEmailChangeResult reports validation problems; on OutcomeOK a mail
// has been sent to the new address.
type StartEmailChangeResult struct {
	Outcome Outcome
	Message string
}

// Start authenticates the request and mails a confirmation link to the new
// address. From an untrusted device the recovery code stands in for the
// device, and wrong codes burn the account's attempt budget.
func (f *EmailChange) Start(ctx context.Context, req StartEmailChangeRequest) (StartEmailChangeResult, error) {
	if isInvalidEmail(req.NewEmail) {
		return StartEmailChangeResult{Outcome: OutcomeInvalid, Message: "The email address is invalid."}, nil
	}

	account, err := f.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return StartEmailChangeResult{Outcome: OutcomeExpired}, nil
		}
		return StartEmailChangeResult{}, err
	}

	match, err := f.hasher.Verify(account.Salt, req.Password, account.PasswordHash)
	if err != nil {
		return StartEmailChangeResult{}, err
	}
	if !match {
		return StartEmailChangeResult{Outcome: OutcomeWrongPassword, Message: "Incorrect password."}, nil
	}

	trusted, err := f.devices.Contains(ctx, account.ID, req.DeviceToken)
	if err != nil {
		return StartEmailChangeResult{}, err
	}
	if !trusted && f.cfg.UseRecoveryCode && account.RecoveryCodeHash != "" {
		normalized := random.NormalizeRecoveryCode(req.RecoveryCode)
		match, err := f.hasher.Verify(account.Salt, normalized, account.RecoveryCodeHash)
		if err != nil {
			return StartEmailChangeResult{}, err
		}
		if !match {
			count, err := f.accountFailures.RegisterFailure(ctx, accountKey(account.ID))
			if err != nil {
				return StartEmailChangeResult{}, err
			}
			if limiters.Exceeded(count, f.cfg.MaxAttempts) {
				return StartEmailChangeResult{Outcome: OutcomeExceeded}, nil
			}
			return StartEmailChangeResult{Outcome: OutcomeWrongCode, Message: "Incorrect recovery code."}, nil
		}
	}

	// Refuse obviously taken addresses early. The authoritative check is
	// the unique constraint at accept time; this one only saves a wasted
	// mail.
	if _, err := f.accounts.GetByEmail(ctx, req.NewEmail); err == nil {
		return StartEmailChangeResult{Outcome: OutcomeEmailTaken, Message: "An account with this email already exists."}, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return StartEmailChangeResult{}, err
	}

	secret, err := f.secrets.Create(ctx, emailChangeKind(f.cfg), map[string]string{
		fieldAccountID: strconv.FormatInt(account.ID, 10),
		fieldNewEmail:  req.NewEmail,
	})
	if err != nil {
		return StartEmailChangeResult{}, err
	}

	msg := mailer.ConfirmEmailChange(req.NewEmail, f.cfg.EmailChangeLinkBase+"/"+secret)
	if err := f.mail.Send(ctx, msg); err != nil {
		return StartEmailChangeResult{}, err
	}

	return StartEmailChangeResult{Outcome: OutcomeOK}, nil
}

// AcceptEmailChangeRequest follows the confirmation link.
type AcceptEmailChangeRequest struct {
	Secret string
}

// AcceptEmailChangeResult is the terminal state of the flow.
type AcceptEmailChangeResult struct {
	Outcome   Outcome
	AccountID int64
	NewEmail  string
}

// Accept consumes the record and commits the address change. A collision
// with an account created meanwhile surfaces as OutcomeEmailTaken.
func (f *EmailChange) Accept(ctx context.Context, req AcceptEmailChangeRequest) (AcceptEmailChangeResult, error) {
	kind := emailChangeKind(f.cfg)
	record, ok, err := f.secrets.Load(ctx, kind, req.Secret)
	if err != nil {
		return AcceptEmailChangeResult{}, err
	}
	if !ok {
		return AcceptEmailChangeResult{Outcome: OutcomeExpired}, nil
	}

	accountID, err := strconv.ParseInt(record[fieldAccountID], 10, 64)
	if err != nil {
		if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
			return AcceptEmailChangeResult{}, err
		}
		return AcceptEmailChangeResult{Outcome: OutcomeExpired}, nil
	}

	if err := f.accounts.ChangeEmail(ctx, accountID, record[fieldNewEmail]); err != nil {
		switch {
		case errors.Is(err, model.ErrDuplicateEmail):
			if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
				return AcceptEmailChangeResult{}, err
			}
			return AcceptEmailChangeResult{Outcome: OutcomeEmailTaken}, nil
		case errors.Is(err, model.ErrNotFound):
			if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
				return AcceptEmailChangeResult{}, err
			}
			return AcceptEmailChangeResult{Outcome: OutcomeExpired}, nil
		}
		return AcceptEmailChangeResult{}, err
	}

	if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
		return AcceptEmailChangeResult{}, err
	}

	return AcceptEmailChangeResult{
		Outcome:   OutcomeOK,
		AccountID: accountID,
		NewEmail:  record[fieldNewEmail],
	}, nil
}
