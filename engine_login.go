package accountd

import (
	"context"
	"errors"
	"time"

	"github.com/swaptacular/accountd/internal/flows"
	"github.com/swaptacular/accountd/internal/model"
)

const (
	rejectReason         = "request_denied"
	wrongPasswordMessage = "Incorrect email or password."
	exceededDescription  = "too many failed verification attempts"
)

// PerformLogin authenticates a login challenge. A decision already recorded
// by the authorization server (skip) is accepted without local
// authentication. Otherwise the password is checked and, when the account
// requires a second factor from an unknown device, a verification code is
// mailed and the decision deferred to VerifyLogin.
func (e *Engine) PerformLogin(ctx context.Context, req PerformLoginRequest) (LoginResult, error) {
	if e == nil || e.challenges == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	started := time.Now()
	defer func() {
		e.metrics.Observe(MetricLoginLatency, time.Since(started))
	}()

	lr, err := e.challenges.GetLoginRequest(ctx, req.Challenge)
	if err != nil {
		return LoginResult{}, err
	}
	if lr.Skip {
		return e.acceptLogin(ctx, req.Challenge, lr.Subject, false)
	}

	account, err := e.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// Indistinguishable from a wrong password.
			return LoginResult{Outcome: OutcomeWrongPassword, Message: wrongPasswordMessage}, nil
		}
		return LoginResult{}, err
	}
	match, err := e.hasher.Verify(account.Salt, req.Password, account.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !match {
		return LoginResult{Outcome: OutcomeWrongPassword, Message: wrongPasswordMessage}, nil
	}

	if account.TwoFactorLogin {
		trusted, err := e.devices.Contains(ctx, account.ID, req.DeviceToken)
		if err != nil {
			return LoginResult{}, err
		}
		if !trusted {
			return e.startVerification(ctx, account.ID, req)
		}
	}

	res, err := e.acceptLogin(ctx, req.Challenge, flows.SubjectFor(account.ID), true)
	res.AccountID = account.ID
	return res, err
}

func (e *Engine) startVerification(ctx context.Context, accountID int64, req PerformLoginRequest) (LoginResult, error) {
	vres, err := e.verification.Start(ctx, flows.StartVerificationRequest{
		AccountID:   accountID,
		Challenge:   req.Challenge,
		DeviceToken: req.DeviceToken,
		UserAgent:   req.UserAgent,
	})
	if err != nil {
		return LoginResult{}, err
	}
	switch vres.Outcome {
	case OutcomeOK:
		e.metricInc(MetricVerificationSent)
		return LoginResult{
			Outcome:            OutcomeVerificationRequired,
			VerificationSecret: vres.Secret,
			AccountID:          accountID,
		}, nil
	case OutcomeExceeded:
		// A locked-out account cannot login until the failure window
		// lapses or a password change proves ownership.
		redirect, err := e.challenges.RejectLogin(ctx, req.Challenge, rejectReason, exceededDescription)
		if err != nil {
			return LoginResult{}, err
		}
		e.metricInc(MetricLoginRejected)
		return LoginResult{Outcome: OutcomeExceeded, RedirectURL: redirect}, nil
	default:
		return LoginResult{Outcome: vres.Outcome}, nil
	}
}

// VerifyLogin checks a verification code and, on success, accepts the
// deferred login challenge and remembers the device.
func (e *Engine) VerifyLogin(ctx context.Context, req VerifyRequest) (LoginResult, error) {
	if e == nil || e.challenges == nil {
		return LoginResult{}, ErrEngineNotReady
	}

	vres, err := e.verification.Verify(ctx, req)
	if err != nil {
		return LoginResult{}, err
	}
	switch vres.Outcome {
	case OutcomeOK:
		e.metricInc(MetricVerificationSuccess)
	case OutcomeWrongCode:
		e.metricInc(MetricVerificationFailure)
		return LoginResult{Outcome: OutcomeWrongCode}, nil
	case OutcomeExceeded:
		e.metricInc(MetricVerificationExceeded)
		return LoginResult{Outcome: OutcomeExceeded}, nil
	default:
		return LoginResult{Outcome: vres.Outcome}, nil
	}

	res, err := e.acceptLogin(ctx, vres.Challenge, flows.SubjectFor(vres.AccountID), true)
	res.AccountID = vres.AccountID
	return res, err
}

func (e *Engine) acceptLogin(ctx context.Context, challenge, subject string, remember bool) (LoginResult, error) {
	redirect, accepted, err := e.challenges.AcceptLogin(ctx, challenge, subject,
		remember, e.config.Hydra.RememberFor)
	if err != nil {
		return LoginResult{}, err
	}
	if !accepted {
		e.metricInc(MetricLoginOverQuota)
		e.metricInc(MetricLoginRejected)
		return LoginResult{Outcome: OutcomeOverQuota, RedirectURL: redirect}, nil
	}
	e.metricInc(MetricLoginAccepted)
	return LoginResult{Outcome: OutcomeOK, RedirectURL: redirect}, nil
}

// PerformConsent accepts a consent challenge, granting every requested
// scope. Scope review is the presentation layer's concern; by the time the
// challenge reaches the engine the subject has already authenticated.
func (e *Engine) PerformConsent(ctx context.Context, challenge string) (ConsentResult, error) {
	if e == nil || e.challenges == nil {
		return ConsentResult{}, ErrEngineNotReady
	}

	cr, err := e.challenges.GetConsentRequest(ctx, challenge)
	if err != nil {
		return ConsentResult{}, err
	}
	redirect, err := e.challenges.AcceptConsent(ctx, challenge, cr.RequestedScope,
		true, e.config.Hydra.RememberFor)
	if err != nil {
		return ConsentResult{}, err
	}
	e.metricInc(MetricConsentAccepted)
	return ConsentResult{RedirectURL: redirect, GrantedScopes: cr.RequestedScope}, nil
}
