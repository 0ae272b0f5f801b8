package accountd

import "github.com/swaptacular/accountd/internal/flows"

// The flow request/result types are aliased here so engine callers never
// import internal packages.
type (
	// Outcome classifies expected terminal and recoverable flow branches.
	Outcome = flows.Outcome

	// StartSignupRequest asks for a signup or password-recovery mail.
	StartSignupRequest = flows.StartSignupRequest
	// StartSignupResult reports only local validation problems.
	StartSignupResult = flows.StartSignupResult
	// AcceptSignupRequest submits the chosen password for a pending signup.
	AcceptSignupRequest = flows.AcceptSignupRequest
	// AcceptSignupResult is the terminal state of the signup flow.
	AcceptSignupResult = flows.AcceptSignupResult

	// VerifyRequest submits a typed-back login verification code.
	VerifyRequest = flows.VerifyRequest

	// StartEmailChangeRequest asks for a confirmation mail to a new address.
	StartEmailChangeRequest = flows.StartEmailChangeRequest
	// StartEmailChangeResult reports validation problems.
	StartEmailChangeResult = flows.StartEmailChangeResult
	// AcceptEmailChangeRequest follows the confirmation link.
	AcceptEmailChangeRequest = flows.AcceptEmailChangeRequest
	// AcceptEmailChangeResult is the terminal state of the email change.
	AcceptEmailChangeResult = flows.AcceptEmailChangeResult
)

const (
	OutcomeOK                   = flows.OutcomeOK
	OutcomeInvalid              = flows.OutcomeInvalid
	OutcomeDuplicate            = flows.OutcomeDuplicate
	OutcomeExpired              = flows.OutcomeExpired
	OutcomeExceeded             = flows.OutcomeExceeded
	OutcomeWrongCode            = flows.OutcomeWrongCode
	OutcomeWrongPassword        = flows.OutcomeWrongPassword
	OutcomeEmailTaken           = flows.OutcomeEmailTaken
	OutcomeVerificationRequired = flows.OutcomeVerificationRequired
	OutcomeOverQuota            = flows.OutcomeOverQuota
)

// PerformLoginRequest authenticates a pending login challenge.
type PerformLoginRequest struct {
	Challenge   string
	Email       string
	Password    string
	DeviceToken string
	UserAgent   string
}

// LoginResult is the engine's answer to a login step. Exactly one of
// RedirectURL (decision recorded with the authorization server) or
// VerificationSecret (second factor pending) is set on success paths.
type LoginResult struct {
	Outcome            Outcome
	Message            string
	RedirectURL        string
	VerificationSecret string
	AccountID          int64
}

// ConsentResult is the engine's answer to a consent challenge.
type ConsentResult struct {
	RedirectURL   string
	GrantedScopes []string
}
