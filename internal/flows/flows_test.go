package flows

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/swaptacular/accountd/internal/devices"
	"github.com/swaptacular/accountd/internal/limiters"
	"github.com/swaptacular/accountd/internal/logger"
	"github.com/swaptacular/accountd/internal/model"
	"github.com/swaptacular/accountd/internal/secrets"
	"github.com/swaptacular/accountd/mailer"
	"github.com/swaptacular/accountd/password"
)

// memStore is an in-memory AccountStore with the same error contract as the
// durable one.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]model.Account
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[int64]model.Account)}
}

func (s *memStore) GetByEmail(_ context.Context, email string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.Email == email {
			return a, nil
		}
	}
	return model.Account{}, model.ErrNotFound
}

func (s *memStore) GetByID(_ context.Context, id int64) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return a, nil
}

func (s *memStore) Create(_ context.Context, account model.Account) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.Email == account.Email {
			return model.Account{}, model.ErrDuplicateEmail
		}
	}
	s.nextID++
	account.ID = s.nextID
	s.byID[account.ID] = account
	return account, nil
}

func (s *memStore) UpdatePassword(_ context.Context, id int64, salt, passwordHash, recoveryCodeHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return model.ErrNotFound
	}
	a.Salt = salt
	a.PasswordHash = passwordHash
	a.RecoveryCodeHash = recoveryCodeHash
	s.byID[id] = a
	return nil
}

func (s *memStore) ChangeEmail(_ context.Context, id int64, newEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return model.ErrNotFound
	}
	for _, other := range s.byID {
		if other.ID != id && other.Email == newEmail {
			return model.ErrDuplicateEmail
		}
	}
	a.Email = newEmail
	s.byID[id] = a
	return nil
}

// captureMailer records every delivery.
type captureMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) mailer.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		t.Fatal("no mail was sent")
	}
	return m.messages[len(m.messages)-1]
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// captureRevoker records session revocations.
type captureRevoker struct {
	mu       sync.Mutex
	subjects []string
}

func (r *captureRevoker) RevokeLoginSessions(_ context.Context, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

// flowsEnv bundles everything a flow needs, backed by miniredis and the
// in-memory account store.
type flowsEnv struct {
	mini            *miniredis.Miniredis
	secrets         *secrets.Store
	accounts        *memStore
	hasher          *password.Hasher
	mail            *captureMailer
	devices         *devices.History
	recordFailures  *limiters.Throttle
	accountFailures *limiters.Throttle
	sessions        *captureRevoker
	cfg             Config
	log             *logger.Logger
}

func newFlowsEnv(t *testing.T) *flowsEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	hasher, err := password.NewHasher(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	return &flowsEnv{
		mini:            mr,
		secrets:         secrets.New(rdb),
		accounts:        newMemStore(),
		hasher:          hasher,
		mail:            &captureMailer{},
		devices:         devices.New(rdb, 10),
		recordFailures:  limiters.NewThrottle(rdb, "rfail", 24*time.Hour),
		accountFailures: limiters.NewThrottle(rdb, "afail", 24*time.Hour),
		sessions:        &captureRevoker{},
		cfg: Config{
			SignupTTL:              24 * time.Hour,
			VerificationTTL:        time.Hour,
			EmailChangeTTL:         24 * time.Hour,
			MaxAttempts:            3,
			CodeDigits:             6,
			UseRecoveryCode:        true,
			TwoFactorLogin:         true,
			PasswordMinLength:      8,
			PasswordMaxLength:      64,
			SiteTitle:              "Example Site",
			SignupLinkBase:         "https://login.example.com/signup",
			ChangePasswordLinkBase: "https://login.example.com/recover",
			EmailChangeLinkBase:    "https://login.example.com/change-email",
			ChangePasswordPageURL:  "https://login.example.com/password",
		},
		log: logger.Discard(),
	}
}

func (e *flowsEnv) newSignup() *Signup {
	return NewSignup(e.secrets, e.accounts, e.hasher, e.mail, e.devices,
		e.recordFailures, e.accountFailures, e.sessions, e.cfg, e.log)
}

func (e *flowsEnv) newLoginVerification() *LoginVerification {
	return NewLoginVerification(e.secrets, e.accounts, e.mail, e.devices,
		e.recordFailures, e.accountFailures, e.cfg, e.log)
}

func (e *flowsEnv) newEmailChange() *EmailChange {
	return NewEmailChange(e.secrets, e.accounts, e.hasher, e.mail, e.devices,
		e.accountFailures, e.cfg, e.log)
}

// secretFromMail extracts the secret appended to base in the mail body.
func secretFromMail(t *testing.T, msg mailer.Message, base string) string {
	t.Helper()
	idx := strings.Index(msg.Body, base+"/")
	if idx < 0 {
		t.Fatalf("mail body does not contain a %q link:\n%s", base, msg.Body)
	}
	rest := msg.Body[idx+len(base)+1:]
	if end := strings.IndexAny(rest, " \n\t"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// register runs a complete signup and returns the created account and the
// recovery code the user was shown.
func register(t *testing.T, e *flowsEnv, email, pass string) (model.Account, string) {
	t.Helper()
	ctx := context.Background()
	flow := e.newSignup()

	res, err := flow.Start(ctx, StartSignupRequest{Email: email})
	if err != nil {
		t.Fatalf("start signup: %v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Fatalf("start signup outcome = %v", res.Outcome)
	}
	secret := secretFromMail(t, e.mail.last(t), e.cfg.SignupLinkBase)

	accepted, err := flow.Accept(ctx, AcceptSignupRequest{
		Secret:   secret,
		Password: pass,
		Confirm:  pass,
	})
	if err != nil {
		t.Fatalf("accept signup: %v", err)
	}
	if accepted.Outcome != OutcomeOK || !accepted.Created {
		t.Fatalf("accept signup outcome = %v created = %v", accepted.Outcome, accepted.Created)
	}

	account, err := e.accounts.GetByID(ctx, accepted.AccountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return account, accepted.RecoveryCode
}
