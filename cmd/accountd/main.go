package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swaptacular/accountd"
	"github.com/swaptacular/accountd/captcha"
	"github.com/swaptacular/accountd/internal/logger"
	"github.com/swaptacular/accountd/internal/model"
	"github.com/swaptacular/accountd/internal/postgres"
	"github.com/swaptacular/accountd/internal/signalbus"
	"github.com/swaptacular/accountd/mailer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("failed to parse redis url", "error", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize database", "error", err)
	}
	defer db.Close()

	bus := signalbus.New(postgres.NewSignalRepository(db), logger)
	accounts := postgres.NewAccountRepository(db, bus, logger)

	var mail mailer.Mailer
	if cfg.Mail.Server != "" {
		mail = mailer.NewSMTP(cfg.Mail.Server, cfg.Mail.From, cfg.Mail.Username, cfg.Mail.Password)
	} else {
		logger.Warn("no mail server configured, outbound mail will only be logged")
		mail = mailer.Log{Logger: logger}
	}

	builder := accountd.New().
		WithConfig(engineConfig(cfg)).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithMailer(mail).
		WithLogger(logger.Logger)
	if cfg.Captcha.SecretKey != "" {
		builder = builder.WithCaptcha(captcha.NewReCAPTCHA(cfg.Captcha.VerifyURL, cfg.Captcha.SecretKey, cfg.Captcha.Timeout))
	}
	engine, err := builder.Build()
	if err != nil {
		logger.Fatal("failed to build engine", "error", err)
	}
	defer engine.Close()

	// Announce committed account updates. Delivery to downstream services
	// rides on the log for now; the outbox guarantees the announcement
	// survives until this handler returns nil.
	bus.Register(signalbus.ModelAccountUpdate, func(ctx context.Context, sig model.AccountUpdateSignal) error {
		logger.Info("account updated",
			"signal_id", sig.ID, "account_id", sig.AccountID,
			"old_email", sig.OldEmail, "new_email", sig.NewEmail)
		engine.Metrics().Inc(accountd.MetricSignalsDispatched)
		return nil
	})
	go sweepSignals(ctx, bus, logger, cfg.SweepInterval)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      newRouter(engine, db, rdb, logger, cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "address", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
	}
	logger.Info("shutdown complete")
}

// sweepSignals periodically drains outbox rows that the after-commit hook
// missed, e.g. rows committed right before a crash.
func sweepSignals(ctx context.Context, bus *signalbus.Bus, logger *logger.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := bus.Process(ctx, signalbus.ModelAccountUpdate); err != nil {
				logger.Error("outbox sweep failed", "error", err)
			}
		}
	}
}

func engineConfig(cfg *Config) accountd.Config {
	conf := accountd.DefaultConfig()
	conf.Hydra.AdminURL = cfg.Hydra.AdminURL
	conf.Hydra.Timeout = cfg.Hydra.Timeout
	conf.Hydra.RememberFor = cfg.Hydra.RememberFor
	conf.Hydra.MonthlyLoginCap = cfg.Hydra.MonthlyLoginCap
	conf.Flows.SiteTitle = cfg.Site.Title
	conf.Flows.SignupLinkBase = cfg.Site.SignupLinkBase
	conf.Flows.ChangePasswordLinkBase = cfg.Site.ChangePasswordLinkBase
	conf.Flows.EmailChangeLinkBase = cfg.Site.EmailChangeLinkBase
	conf.Flows.ChangePasswordPageURL = cfg.Site.ChangePasswordPageURL
	return conf
}
