package accountd

import "context"

// StartSignup verifies the CAPTCHA solution and requests a signup or
// password-recovery mail. The response shape never reveals whether the
// address is registered.
func (e *Engine) StartSignup(ctx context.Context, req StartSignupRequest, captchaResponse, remoteIP string) (StartSignupResult, error) {
	if e == nil || e.signup == nil {
		return StartSignupResult{}, ErrEngineNotReady
	}

	check, err := e.captcha.Verify(ctx, captchaResponse, remoteIP)
	if err != nil {
		return StartSignupResult{}, err
	}
	if !check.Valid {
		return StartSignupResult{Outcome: OutcomeInvalid, Message: check.Message}, nil
	}

	res, err := e.signup.Start(ctx, req)
	if err != nil {
		return StartSignupResult{}, err
	}
	if res.Outcome == OutcomeOK {
		e.metricInc(MetricSignupStarted)
	}
	return res, nil
}

// AcceptSignup commits a pending signup or recovery.
func (e *Engine) AcceptSignup(ctx context.Context, req AcceptSignupRequest) (AcceptSignupResult, error) {
	if e == nil || e.signup == nil {
		return AcceptSignupResult{}, ErrEngineNotReady
	}

	res, err := e.signup.Accept(ctx, req)
	if err != nil {
		return AcceptSignupResult{}, err
	}
	switch res.Outcome {
	case OutcomeOK:
		if res.Created {
			e.metricInc(MetricSignupAccepted)
		} else {
			e.metricInc(MetricRecoveryAccepted)
		}
	case OutcomeDuplicate:
		e.metricInc(MetricSignupDuplicate)
	}
	return res, nil
}
