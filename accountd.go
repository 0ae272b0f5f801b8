package accountd

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/swaptacular/accountd/captcha"
	"github.com/swaptacular/accountd/internal/devices"
	"github.com/swaptacular/accountd/internal/flows"
	"github.com/swaptacular/accountd/internal/hydra"
	"github.com/swaptacular/accountd/internal/limiters"
	"github.com/swaptacular/accountd/internal/logger"
	"github.com/swaptacular/accountd/internal/model"
	"github.com/swaptacular/accountd/internal/secrets"
	"github.com/swaptacular/accountd/mailer"
	"github.com/swaptacular/accountd/password"
)

// Builder assembles an Engine. All collaborators are injected; Build wires
// the internal stores, throttles and flows around them.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	accounts model.AccountStore
	mail     mailer.Mailer
	captcha  captcha.Verifier
	log      *slog.Logger

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the ephemeral-store client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the durable account storage. Required.
func (b *Builder) WithAccountStore(accounts model.AccountStore) *Builder {
	b.accounts = accounts
	return b
}

// WithMailer sets the outbound mail collaborator. Required.
func (b *Builder) WithMailer(mail mailer.Mailer) *Builder {
	b.mail = mail
	return b
}

// WithCaptcha sets the CAPTCHA verifier. Optional; defaults to disabled.
func (b *Builder) WithCaptcha(verifier captcha.Verifier) *Builder {
	b.captcha = verifier
	return b
}

// WithLogger sets the application logger. Optional; defaults to discarding.
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.log = log
	return b
}

// Build validates the configuration and wires the engine. The builder is
// single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	b.built = true

	if err := validateConfig(b.config); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, ErrMissingRedis
	}
	if b.accounts == nil {
		return nil, ErrMissingAccounts
	}
	if b.mail == nil {
		return nil, ErrMissingMailer
	}

	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}

	log := logger.Wrap(b.log)
	verifier := b.captcha
	if verifier == nil {
		verifier = captcha.Disabled{}
	}

	// The per-record counter must outlive the longest record.
	recordWindow := b.config.Flows.SignupTTL
	if b.config.Flows.VerificationTTL > recordWindow {
		recordWindow = b.config.Flows.VerificationTTL
	}
	if b.config.Flows.EmailChangeTTL > recordWindow {
		recordWindow = b.config.Flows.EmailChangeTTL
	}

	secretStore := secrets.New(b.redis)
	deviceHistory := devices.New(b.redis, b.config.Devices.HistorySize)
	recordFailures := limiters.NewThrottle(b.redis, "rfail", recordWindow)
	accountFailures := limiters.NewThrottle(b.redis, "afail", b.config.Flows.FailureWindow)

	var challenges *hydra.Client
	if b.config.Hydra.AdminURL != "" {
		quota := limiters.NewLoginQuota(b.redis, b.config.Hydra.MonthlyLoginCap)
		challenges = hydra.New(b.config.Hydra.AdminURL, b.config.Hydra.Timeout, quota)
	}

	flowCfg := b.config.flowConfig()
	var revoker flows.SessionRevoker
	if challenges != nil {
		revoker = challenges
	}

	return &Engine{
		config:       b.config,
		accounts:     b.accounts,
		hasher:       hasher,
		captcha:      verifier,
		devices:      deviceHistory,
		challenges:   challenges,
		metrics:      NewMetrics(b.config.Metrics),
		log:          log,
		signup:       flows.NewSignup(secretStore, b.accounts, hasher, b.mail, deviceHistory, recordFailures, accountFailures, revoker, flowCfg, log),
		verification: flows.NewLoginVerification(secretStore, b.accounts, b.mail, deviceHistory, recordFailures, accountFailures, flowCfg, log),
		emailChange:  flows.NewEmailChange(secretStore, b.accounts, hasher, b.mail, deviceHistory, accountFailures, flowCfg, log),
	}, nil
}

// Engine exposes the user-journey operations and the challenge
// orchestration. Safe for concurrent use.
type Engine struct {
	config     Config
	accounts   model.AccountStore
	hasher     *password.Hasher
	captcha    captcha.Verifier
	devices    *devices.History
	challenges *hydra.Client
	metrics    *Metrics
	log        *logger.Logger

	signup       *flows.Signup
	verification *flows.LoginVerification
	emailChange  *flows.EmailChange
}

// Close releases engine resources. Injected collaborators (redis client,
// database pool) stay open; their lifecycle belongs to the caller.
func (e *Engine) Close() {}

// Metrics returns the engine counter set.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot copies the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
