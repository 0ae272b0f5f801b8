package accountd

import (
	"errors"
	"time"

	"github.com/swaptacular/accountd/internal/flows"
	"github.com/swaptacular/accountd/password"
)

// Config defines the engine tunables. Zero values are filled in from
// DefaultConfig by the builder; an explicitly invalid value fails Build.
type Config struct {
	Flows    FlowConfig
	Devices  DeviceConfig
	Hydra    HydraConfig
	Password password.Config
	Metrics  MetricsConfig
}

/*
====================================
FLOW CONFIG
====================================
*/

// FlowConfig drives the signup, login-verification and email-change
// journeys.
type FlowConfig struct {
	SignupTTL       time.Duration // pending signup/recovery lifetime
	VerificationTTL time.Duration // login verification code lifetime
	EmailChangeTTL  time.Duration // pending email change lifetime

	MaxAttempts     int // per-secret and per-account code attempt cap
	CodeDigits      int
	UseRecoveryCode bool
	TwoFactorLogin  bool

	PasswordMinLength int
	PasswordMaxLength int

	// FailureWindow bounds the per-account failure counter that survives
	// individual records. It must not be shorter than any record TTL.
	FailureWindow time.Duration

	SiteTitle              string
	SignupLinkBase         string
	ChangePasswordLinkBase string
	EmailChangeLinkBase    string
	ChangePasswordPageURL  string
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig drives the trusted-device history.
type DeviceConfig struct {
	HistorySize int // trusted devices remembered per account
}

/*
====================================
HYDRA CONFIG
====================================
*/

// HydraConfig drives the authorization-server adapter.
type HydraConfig struct {
	AdminURL string
	Timeout  time.Duration
	// RememberFor is how long an accepted login session is remembered by
	// the authorization server.
	RememberFor time.Duration
	// MonthlyLoginCap converts login acceptance into rejection once a
	// subject exceeds it inside a 30-day window. Zero disables the cap.
	MonthlyLoginCap int
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig enables the engine counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig mirrors the production defaults of the original service:
// day-long signup links, hour-long verification codes, ten attempts, ten
// remembered devices.
func DefaultConfig() Config {
	return Config{
		Flows: FlowConfig{
			SignupTTL:         24 * time.Hour,
			VerificationTTL:   time.Hour,
			EmailChangeTTL:    time.Hour,
			MaxAttempts:       10,
			CodeDigits:        6,
			UseRecoveryCode:   true,
			TwoFactorLogin:    true,
			PasswordMinLength: 8,
			PasswordMaxLength: 64,
			FailureWindow:     30 * 24 * time.Hour,
		},
		Devices: DeviceConfig{
			HistorySize: 10,
		},
		Hydra: HydraConfig{
			Timeout:     5 * time.Second,
			RememberFor: 30 * 24 * time.Hour,
		},
		Password: password.DefaultConfig(),
		Metrics:  MetricsConfig{Enabled: true},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Flows.SignupTTL <= 0 || cfg.Flows.VerificationTTL <= 0 || cfg.Flows.EmailChangeTTL <= 0 {
		return errors.New("flow record TTLs must be positive")
	}
	if cfg.Flows.MaxAttempts < 1 {
		return errors.New("flow max attempts must be >= 1")
	}
	if cfg.Flows.CodeDigits < 6 || cfg.Flows.CodeDigits > 10 {
		return errors.New("verification code digits must be in 6..10")
	}
	if cfg.Flows.PasswordMinLength < 1 || cfg.Flows.PasswordMaxLength < cfg.Flows.PasswordMinLength {
		return errors.New("password length bounds are inconsistent")
	}
	if cfg.Flows.FailureWindow < cfg.Flows.SignupTTL ||
		cfg.Flows.FailureWindow < cfg.Flows.VerificationTTL ||
		cfg.Flows.FailureWindow < cfg.Flows.EmailChangeTTL {
		return errors.New("failure window must not be shorter than any record TTL")
	}
	if cfg.Devices.HistorySize < 1 {
		return errors.New("device history size must be >= 1")
	}
	if cfg.Hydra.AdminURL != "" && cfg.Hydra.Timeout <= 0 {
		return errors.New("hydra timeout must be positive")
	}
	return nil
}

func (cfg Config) flowConfig() flows.Config {
	return flows.Config{
		SignupTTL:              cfg.Flows.SignupTTL,
		VerificationTTL:        cfg.Flows.VerificationTTL,
		EmailChangeTTL:         cfg.Flows.EmailChangeTTL,
		MaxAttempts:            cfg.Flows.MaxAttempts,
		CodeDigits:             cfg.Flows.CodeDigits,
		UseRecoveryCode:        cfg.Flows.UseRecoveryCode,
		TwoFactorLogin:         cfg.Flows.TwoFactorLogin,
		PasswordMinLength:      cfg.Flows.PasswordMinLength,
		PasswordMaxLength:      cfg.Flows.PasswordMaxLength,
		SiteTitle:              cfg.Flows.SiteTitle,
		SignupLinkBase:         cfg.Flows.SignupLinkBase,
		ChangePasswordLinkBase: cfg.Flows.ChangePasswordLinkBase,
		EmailChangeLinkBase:    cfg.Flows.EmailChangeLinkBase,
		ChangePasswordPageURL:  cfg.Flows.ChangePasswordPageURL,
	}
}
