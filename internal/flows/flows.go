// Package flows implements the three multi-step user journeys: signup (and
// password recovery), login verification, and email change. Each journey is
// a small state machine carried by one secret-keyed record: Issued (record
// created, nothing durable changed), Verifying (user-submitted secrets
// checked under the attempt throttle), and Accepted (record consumed, the
// durable mutation committed) or Expired/Exceeded (record gone, the flow is
// dead and must be restarted).
package flows

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/swaptacular/accountd/internal/secrets"
)

// Outcome classifies the expected terminal and recoverable branches of a
// flow step. Hard errors are reserved for unexpected failures (backend
// unavailable); everything a user can cause is an Outcome.
type Outcome int

const (
	// OutcomeOK means the step succeeded.
	OutcomeOK Outcome = iota
	// OutcomeInvalid means local validation failed; Message says why and
	// the same step may be re-rendered. No record state was touched.
	OutcomeInvalid
	// OutcomeDuplicate is the duplicate-registration branch: the email is
	// already bound to an account. The outward response shape is identical
	// to success.
	OutcomeDuplicate
	// OutcomeExpired means the secret is absent, expired, or never existed.
	// The three cases are indistinguishable by design.
	OutcomeExpired
	// OutcomeExceeded means the attempt budget is spent. The record has
	// been deleted; only a brand-new flow can continue.
	OutcomeExceeded
	// OutcomeWrongCode means the submitted code did not match but the
	// budget still has room to retry.
	OutcomeWrongCode
	// OutcomeWrongPassword means the current password did not match.
	OutcomeWrongPassword
	// OutcomeEmailTaken means the requested email collides with an
	// existing account.
	OutcomeEmailTaken
	// OutcomeVerificationRequired means local authentication succeeded but
	// a second factor must be completed before the login is accepted.
	OutcomeVerificationRequired
	// OutcomeOverQuota means the monthly login cap converted the acceptance
	// into a rejection. The reject redirect is still returned.
	OutcomeOverQuota
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeExpired:
		return "expired"
	case OutcomeExceeded:
		return "exceeded"
	case OutcomeWrongCode:
		return "wrong code"
	case OutcomeWrongPassword:
		return "wrong password"
	case OutcomeEmailTaken:
		return "email taken"
	case OutcomeVerificationRequired:
		return "verification required"
	case OutcomeOverQuota:
		return "over quota"
	default:
		return "unknown"
	}
}

// Config carries the tunables shared by the flows.
type Config struct {
	SignupTTL       time.Duration // lifetime of a pending signup/recovery
	VerificationTTL time.Duration // lifetime of a login verification code
	EmailChangeTTL  time.Duration // lifetime of a pending email change

	MaxAttempts     int  // per-secret and per-account code attempt cap
	CodeDigits      int  // verification code length
	UseRecoveryCode bool // issue and require recovery codes
	TwoFactorLogin  bool // require a second factor on unknown devices

	PasswordMinLength int
	PasswordMaxLength int

	SiteTitle string

	// Link bases for the mails; the secret is appended as the last path
	// segment.
	SignupLinkBase         string
	ChangePasswordLinkBase string
	EmailChangeLinkBase    string
	// ChangePasswordPageURL is referenced in verification-code mails.
	ChangePasswordPageURL string
}

// Record kinds. Field names are the closed schema of each record; a record
// missing any of them reads as absent.
const (
	fieldEmail     = "email"
	fieldRecover   = "recover"
	fieldDevice    = "cc"
	fieldAccountID = "user_id"
	fieldCode      = "code"
	fieldChallenge = "challenge"
	fieldNewEmail  = "new_email"
)

func signupKind(cfg Config) secrets.Kind {
	return secrets.Kind{
		Prefix: "signup",
		Fields: []string{fieldEmail, fieldRecover, fieldDevice},
		TTL:    cfg.SignupTTL,
	}
}

func loginVerificationKind(cfg Config) secrets.Kind {
	return secrets.Kind{
		Prefix: "lvr",
		Fields: []string{fieldAccountID, fieldCode, fieldChallenge, fieldDevice},
		TTL:    cfg.VerificationTTL,
	}
}

func emailChangeKind(cfg Config) secrets.Kind {
	return secrets.Kind{
		Prefix: "cem",
		Fields: []string{fieldAccountID, fieldNewEmail},
		TTL:    cfg.EmailChangeTTL,
	}
}

// accountKey is the per-account throttle subject.
func accountKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// SubjectFor is the OAuth2 subject bound to an account. Authorization-server
// sessions and the login quota are keyed by it.
func SubjectFor(id int64) string {
	return strconv.FormatInt(id, 10)
}

var emailRegexp = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

func isInvalidEmail(email string) bool {
	return !emailRegexp.MatchString(email)
}

// validatePassword returns a re-render message for a bad password choice,
// or "" when the password is acceptable.
func validatePassword(cfg Config, password, confirm string) string {
	if len(password) < cfg.PasswordMinLength {
		return fmt.Sprintf("The password should have at least %d characters.", cfg.PasswordMinLength)
	}
	if len(password) > cfg.PasswordMaxLength {
		return fmt.Sprintf("The password should have at most %d characters.", cfg.PasswordMaxLength)
	}
	if password != confirm {
		return "Passwords do not match."
	}
	return ""
}
