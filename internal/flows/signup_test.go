package flows

import (
	"context"
	"strings"
	"testing"
)

func TestSignupRegistration(t *testing.T) {
	e := newFlowsEnv(t)
	account, recoveryCode := register(t, e, "alice@example.com", "correct horse")

	if account.Email != "alice@example.com" {
		t.Fatalf("email = %q", account.Email)
	}
	if !account.TwoFactorLogin {
		t.Fatal("new accounts must require two-factor login")
	}
	if recoveryCode == "" {
		t.Fatal("recovery code must be issued on registration")
	}
	if account.RecoveryCodeHash == "" {
		t.Fatal("recovery code hash must be stored")
	}
	// The stored hash covers the normalized form of the code shown once.
	match, err := e.hasher.Verify(account.Salt, normalizeForTest(recoveryCode), account.RecoveryCodeHash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !match {
		t.Fatal("issued recovery code does not match its stored hash")
	}
}

func TestSignupRegisteredDeviceIsTrusted(t *testing.T) {
	e := newFlowsEnv(t)
	ctx := context.Background()
	flow := e.newSignup()

	res, err := flow.Start(ctx, StartSignupRequest{Email: "alice@example.com", DeviceToken: "browser-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Fatalf("start outcome = %v", res.Outcome)
	}
	secret := secretFromMail(t, e.mail.last(t), e.cfg.SignupLinkBase)

	accepted, err := flow.Accept(ctx, AcceptSignupRequest{
		Secret:   secret,
		Password: "correct horse",
		Confirm:  "correct horse",
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Outcome != OutcomeOK {
		t.Fatalf("accept outcome = %v", accepted.Outcome)
	}

	// The registering browser must skip the second factor on first login.
	trusted, err := e.devices.Contains(ctx, accepted.AccountID, "browser-1")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !trusted {
		t.Fatal("registering device must be trusted after acceptance")
	}
	other, err := e.devices.Contains(ctx, accepted.AccountID, "browser-2")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if other {
		t.Fatal("unknown device must not be trusted")
	}
}

func TestSignupInvalidEmail(t *testing.T) {
	e := newFlowsEnv(t)
	flow := e.newSignup()

	res, err := flow.Start(context.Background(), StartSignupRequest{Email: "not-an-email"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Outcome != OutcomeInvalid {
		t.Fatalf("outcome = %v, want invalid", res.Outcome)
	}
	if e.mail.count() != 0 {
		t.Fatal("no mail may be sent for an invalid address")
	}
}

func TestSignupDuplicateEmailLooksLikeSuccess(t *testing.T) {
	e := newFlowsEnv(t)
	register(t, e, "alice@example.com", "correct horse")
	flow := e.newSignup()
	before := e.mail.count()

	res, err := flow.Start(context.Background(), StartSignupRequest{Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Fatalf("outcome = %v, want ok (indistinguishable from success)", res.Outcome)
	}
	msg := e.mail.last(t)
	if e.mail.count() != before+1 {
		t.Fatal("exactly one mail must be sent")
	}
	if !strings.Contains(msg.Subject, "Duplicate") {
		t.Fatalf("unexpected mail subject %q", msg.Subject)
	}
	if strings.Contains(msg.Body, e.cfg.SignupLinkBase) {
		t.Fatal("duplicate-registration mail must not carry a signup link")
	}
}

func TestSignupRecoveryUnknownEmailLooksLikeSuccess(t *testing.T) {
	e := newFlowsEnv(t)
	flow := e.newSignup()

	res, err := flow.Start(context.Background(), StartSignupRequest{
		Email:   "nobody@example.com",
		Recover: true,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Fatalf("outcome = %v, want ok", res.Outcome)
	}
	if e.mail.count() != 0 {
		t.Fatal("no mail may be sent for an unknown address")
	}
}

func TestSignupAcceptExpiredSecret(t *testing.T) {
	e := newFlowsEnv(t)
	flow := e.newSignup()

	res, err := flow.Accept(context.Background(), AcceptSignupRequest{
		Secret:   "never-issued",
		Password: "correct horse",
		Confirm:  "correct horse",
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Outcome != OutcomeExpired {
		t.Fatalf("outcome = %v, want expired", res.Outcome)
	}
}

func TestSignupAcceptPasswordValidation(t *testing.T) {
	e := newFlowsEnv(t)
	flow := e.newSignup()
	ctx := context.Background()

	for _, tc := range []struct {
		name, password, confirm string
	}{
		{"too short", "short", "short"},
		{"too long", strings.Repeat("x", 65), strings.Repeat("x", 65)},
		{"mismatch", "correct horse", "wrong horse"},
	} {
		res, err := flow.Accept(ctx, AcceptSignupRequest{
			Secret:   "irrelevant",
			Password: tc.password,
			Confirm:  tc.confirm,
		})
		if err != nil {
			t.Fatalf("%s: accept: %v", tc.name, err)
		}
		if res.Outcome != OutcomeInvalid {
			t.Fatalf("%s: outcome = %v, want invalid", tc.name, res.Outcome)
		}
		if res.Message == "" {
			t.Fatalf("%s: re-render message missing", tc.name)
		}
	}
}

func TestSignupLostRaceIsDuplicate(t *testing.T) {
	e := newFlowsEnv(t)
	flow := e.newSignup()
	ctx := context.Background()

	// Two pending signups for the same address.
	for i := 0; i < 2; i++ {
		res, err := flow.Start(ctx, StartSignupRequest{Email: "alice@example.com"})
		if err != nil || res.Outcome != OutcomeOK {
			t.Fatalf("start: %v %v", res.Outcome, err)
		}
	}
	first := secretFromMail(t, e.mail.messages[0], e.cfg.SignupLinkBase)
	second := secretFromMail(t, e.mail.messages[1], e.cfg.SignupLinkBase)

	win, err := flow.Accept(ctx, AcceptSignupRequest{Secret: first, Password: "correct horse", Confirm: "correct horse"})
	if err != nil || win.Outcome != OutcomeOK {
		t.Fatalf("winner accept: %v %v", win.Outcome, err)
	}

	lose, err := flow.Accept(ctx, AcceptSignupRequest{Secret: second, Password: "correct horse", Confirm: "correct horse"})
	if err != nil {
		t.Fatalf("loser accept: %v", err)
	}
	if lose.Outcome != OutcomeDuplicate {
		t.Fatalf("loser outcome = %v, want duplicate", lose.Outcome)
	}
	// Losing must not mint a second account.
	if len(e.accounts.byID) != 1 {
		t.Fatalf("accounts = %d, want 1", len(e.accounts.byID))
	}
	// The losing record is consumed: a retry reads as expired.
	again, err := flow.Accept(ctx, AcceptSignupRequest{Secret: second, Password: "correct horse", Confirm: "correct horse"})
	if err != nil || again.Outcome != OutcomeExpired {
		t.Fatalf("retry outcome = %v %v, want expired", again.Outcome, err)
	}
}

func TestRecoveryChangesPasswordAndRevokesSessions(t *testing.T) {
	e := newFlowsEnv(t)
	account, recoveryCode := register(t, e, "alice@example.com", "correct horse")
	ctx := context.Background()

	// A trusted device that must be forced out by the password change.
	if err := e.devices.Add(ctx, account.ID, "device-cookie"); err != nil {
		t.Fatalf("add device: %v", err)
	}

	flow := e.newSignup()
	res, err := flow.Start(ctx, StartSignupRequest{Email: "alice@example.com", Recover: true})
	if err != nil || res.Outcome != OutcomeOK {
		t.Fatalf("start recovery: %v %v", res.Outcome, err)
	}
	secret := secretFromMail(t, e.mail.last(t), e.cfg.ChangePasswordLinkBase)

	accepted, err := flow.Accept(ctx, AcceptSignupRequest{
		Secret:       secret,
		Password:     "battery staple",
		Confirm:      "battery staple",
		RecoveryCode: recoveryCode,
	})
	if err != nil {
		t.Fatalf("accept recovery: %v", err)
	}
	if accepted.Outcome != OutcomeOK || accepted.Created {
		t.Fatalf("outcome = %v created = %v", accepted.Outcome, accepted.Created)
	}

	updated, err := e.accounts.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	match, err := e.hasher.Verify(updated.Salt, "battery staple", updated.PasswordHash)
	if err != nil || !match {
		t.Fatalf("new password does not verify: %v %v", match, err)
	}
	// The recovery code survives a password change.
	match, err = e.hasher.Verify(updated.Salt, normalizeForTest(recoveryCode), updated.RecoveryCodeHash)
	if err != nil || !match {
		t.Fatalf("recovery code no longer verifies: %v %v", match, err)
	}

	trusted, err := e.devices.Contains(ctx, account.ID, "device-cookie")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if trusted {
		t.Fatal("trusted devices must be cleared by a password change")
	}
	if len(e.sessions.subjects) != 1 || e.sessions.subjects[0] != SubjectFor(account.ID) {
		t.Fatalf("revoked subjects = %v", e.sessions.subjects)
	}
}

func TestRecoveryWrongCodeBurnsAttempts(t *testing.T) {
	e := newFlowsEnv(t)
	_, _ = register(t, e, "alice@example.com", "correct horse")
	ctx := context.Background()

	flow := e.newSignup()
	res, err := flow.Start(ctx, StartSignupRequest{Email: "alice@example.com", Recover: true})
	if err != nil || res.Outcome != OutcomeOK {
		t.Fatalf("start recovery: %v %v", res.Outcome, err)
	}
	secret := secretFromMail(t, e.mail.last(t), e.cfg.ChangePasswordLinkBase)

	req := AcceptSignupRequest{
		Secret:       secret,
		Password:     "battery staple",
		Confirm:      "battery staple",
		RecoveryCode: "0000-0000-0000-0000",
	}
	for i := 0; i < e.cfg.MaxAttempts; i++ {
		res, err := flow.Accept(ctx, req)
		if err != nil {
			t.Fatalf("accept %d: %v", i, err)
		}
		if res.Outcome != OutcomeWrongCode {
			t.Fatalf("accept %d outcome = %v, want wrong code", i, res.Outcome)
		}
	}

	res2, err := flow.Accept(ctx, req)
	if err != nil {
		t.Fatalf("final accept: %v", err)
	}
	if res2.Outcome != OutcomeExceeded {
		t.Fatalf("outcome = %v, want exceeded", res2.Outcome)
	}
	// The record is gone; even the right code cannot resurrect the flow.
	res2, err = flow.Accept(ctx, req)
	if err != nil || res2.Outcome != OutcomeExpired {
		t.Fatalf("post-exceeded outcome = %v %v, want expired", res2.Outcome, err)
	}
}

func TestRecoveryCodeNormalization(t *testing.T) {
	e := newFlowsEnv(t)
	_, recoveryCode := register(t, e, "alice@example.com", "correct horse")
	ctx := context.Background()

	flow := e.newSignup()
	res, err := flow.Start(ctx, StartSignupRequest{Email: "alice@example.com", Recover: true})
	if err != nil || res.Outcome != OutcomeOK {
		t.Fatalf("start recovery: %v %v", res.Outcome, err)
	}
	secret := secretFromMail(t, e.mail.last(t), e.cfg.ChangePasswordLinkBase)

	// Lowercase, no separators, extra whitespace: all accepted.
	mangled := "  " + strings.ToLower(strings.ReplaceAll(recoveryCode, "-", " ")) + " "
	accepted, err := flow.Accept(ctx, AcceptSignupRequest{
		Secret:       secret,
		Password:     "battery staple",
		Confirm:      "battery staple",
		RecoveryCode: mangled,
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Outcome != OutcomeOK {
		t.Fatalf("outcome = %v, want ok for mangled-but-equivalent code", accepted.Outcome)
	}
}

// normalizeForTest mirrors the canonical form the flows hash.
func normalizeForTest(code string) string {
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(strings.TrimSpace(code))
}
