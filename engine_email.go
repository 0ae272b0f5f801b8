package accountd

import "context"

// StartEmailChange authenticates the request and mails a confirmation link
// to the new address.
func (e *Engine) StartEmailChange(ctx context.Context, req StartEmailChangeRequest) (StartEmailChangeResult, error) {
	if e == nil || e.emailChange == nil {
		return StartEmailChangeResult{}, ErrEngineNotReady
	}

	res, err := e.emailChange.Start(ctx, req)
	if err != nil {
		return StartEmailChangeResult{}, err
	}
	if res.Outcome == OutcomeOK {
		e.metricInc(MetricEmailChangeStarted)
	}
	return res, nil
}

// AcceptEmailChange commits a pending email change. The new address and the
// outbox signal row are written in one transaction; subscribers are notified
// after commit.
func (e *Engine) AcceptEmailChange(ctx context.Context, req AcceptEmailChangeRequest) (AcceptEmailChangeResult, error) {
	if e == nil || e.emailChange == nil {
		return AcceptEmailChangeResult{}, ErrEngineNotReady
	}

	res, err := e.emailChange.Accept(ctx, req)
	if err != nil {
		return AcceptEmailChangeResult{}, err
	}
	if res.Outcome == OutcomeOK {
		e.metricInc(MetricEmailChangeAccepted)
	}
	return res, nil
}
