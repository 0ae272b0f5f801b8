package flows

import (
	"context"
	"crypto/subtle"
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

// LoginVerification runs the second login factor: a short numeric code is
// mailed to the account's address and must be typed back before the
// outstanding login challenge may be accepted.
type LoginVerification struct {
	secrets         *secrets.Store
	accounts        model.AccountStore
	mail            mailer.Mailer
	devices         *devices.History
	recordFailures  *limiters.Throttle
	accountFailures *limiters.Throttle
	cfg             Config
	log             *logger.Logger
}

// NewLoginVerification wires the verification flow.
func NewLoginVerification(
	secretStore *secrets.Store,
	accounts model.AccountStore,
	mail mailer.Mailer,
	deviceHistory *devices.History,
	recordFailures, accountFailures *limiters.Throttle,
	cfg Config,
	log *logger.Logger,
) *LoginVerification {
	return &LoginVerification{
		secrets:         secretStore,
		accounts:        accounts,
		mail:            mail,
		devices:         deviceHistory,
		recordFailures:  recordFailures,
		accountFailures: accountFailures,
		cfg:             cfg,
		log:             log,
	}
}

// StartVerificationRequest asks for a verification code mail tied to a
// pending login challenge.
type StartVerificationRequest struct {
	AccountID   int64
	Challenge   string
	DeviceToken string
	UserAgent   string // shown in the mail so the owner can spot abuse
}

// StartVerificationResult carries the secret under which the pending
// verification is stored. The code itself travels only by mail.
type StartVerificationResult struct {
	Outcome Outcome
	Secret  string
}

// Start mints a code, stores the pending verification and mails the code.
// Accounts already past their attempt budget are refused up front so a
// locked-out attacker cannot keep triggering mails.
func (f *LoginVerification) Start(ctx context.Context, req StartVerificationRequest) (StartVerificationResult, error) {
	account, err := f.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return StartVerificationResult{Outcome: OutcomeExpired}, nil
		}
		return StartVerificationResult{}, err
	}

	count, err := f.accountFailures.Count(ctx, accountKey(account.ID))
	if err != nil {
		return StartVerificationResult{}, err
	}
	if limiters.Exceeded(count, f.cfg.MaxAttempts) {
		return StartVerificationResult{Outcome: OutcomeExceeded}, nil
	}

	code, err := random.NewVerificationCode(f.cfg.CodeDigits)
	if err != nil {
		return StartVerificationResult{}, err
	}
	secret, err := f.secrets.Create(ctx, loginVerificationKind(f.cfg), map[string]string{
		fieldAccountID: strconv.FormatInt(account.ID, 10),
		fieldCode:      code,
		fieldChallenge: req.Challenge,
		fieldDevice:    req.DeviceToken,
	})
	if err != nil {
		return StartVerificationResult{}, err
	}

	msg := mailer.VerificationCode(account.Email, code, req.UserAgent, f.cfg.ChangePasswordPageURL)
	if err := f.mail.Send(ctx, msg); err != nil {
		return StartVerificationResult{}, err
	}

	return StartVerificationResult{Outcome: OutcomeOK, Secret: secret}, nil
}

// VerifyRequest submits the typed-back code.
type VerifyRequest struct {
	Secret string
	Code   string
}

// VerifyResult is the terminal state of the flow. On success Challenge is
// the login challenge the verification was started for, ready to be
// accepted, and the device token has been recorded as trusted.
type VerifyResult struct {
	Outcome   Outcome
	AccountID int64
	Challenge string
}

// Verify checks the submitted code against the pending record. Wrong codes
// burn one attempt on the record and one on the account; exhausting either
// budget kills the record.
func (f *LoginVerification) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	kind := loginVerificationKind(f.cfg)
	record, ok, err := f.secrets.Load(ctx, kind, req.Secret)
	if err != nil {
		return VerifyResult{}, err
	}
	if !ok {
		return VerifyResult{Outcome: OutcomeExpired}, nil
	}

	accountID, err := strconv.ParseInt(record[fieldAccountID], 10, 64)
	if err != nil {
		// Unparsable records are treated as gone.
		if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{Outcome: OutcomeExpired}, nil
	}

	if subtle.ConstantTimeCompare([]byte(req.Code), []byte(record[fieldCode])) != 1 {
		recordCount, err := f.recordFailures.RegisterFailure(ctx, req.Secret)
		if err != nil {
			return VerifyResult{}, err
		}
		accountCount, err := f.accountFailures.RegisterFailure(ctx, accountKey(accountID))
		if err != nil {
			return VerifyResult{}, err
		}
		if limiters.Exceeded(recordCount, f.cfg.MaxAttempts) || limiters.Exceeded(accountCount, f.cfg.MaxAttempts) {
			if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
				return VerifyResult{}, err
			}
			return VerifyResult{Outcome: OutcomeExceeded}, nil
		}
		return VerifyResult{Outcome: OutcomeWrongCode}, nil
	}

	if err := f.secrets.Delete(ctx, kind, req.Secret); err != nil {
		return VerifyResult{}, err
	}
	if err := f.accountFailures.Reset(ctx, accountKey(accountID)); err != nil {
		return VerifyResult{}, err
	}
	if err := f.devices.Add(ctx, accountID, record[fieldDevice]); err != nil {
		return VerifyResult{}, err
	}

	return VerifyResult{
		Outcome:   OutcomeOK,
		AccountID: accountID,
		Challenge: record[fieldChallenge],
	}, nil
}
