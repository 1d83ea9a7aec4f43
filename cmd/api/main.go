package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-auth-nosql/internal/application/account"
	"github.com/go-auth-nosql/internal/application/auth"
	"github.com/go-auth-nosql/internal/application/otp"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/infrastructure/mail"
	"github.com/go-auth-nosql/internal/infrastructure/mailgun"
	"github.com/go-auth-nosql/internal/infrastructure/memory"
	"github.com/go-auth-nosql/internal/infrastructure/sendgrid"
	"github.com/go-auth-nosql/internal/infrastructure/smtp"
	"github.com/go-auth-nosql/internal/infrastructure/sns"
	"github.com/go-auth-nosql/internal/pkg/password"
	"github.com/go-auth-nosql/internal/pkg/txn"
	transporthttp "github.com/go-auth-nosql/internal/transport/http"
	"github.com/joho/godotenv"
)

type accountRepo interface {
	Create(ctx context.Context, a *domain.Account) error
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpgradeRole(ctx context.Context, a *domain.Account, from domain.Role) error
	SetVerified(ctx context.Context, accountID string, now time.Time) error
	SetPasswordHash(ctx context.Context, accountID, hash string, now time.Time) error
	ClaimOTPSend(ctx context.Context, accountID string, now time.Time, cooldown time.Duration) error
}

type profileRepo interface {
	Exists(ctx context.Context, accountID string, role domain.Role) (bool, error)
	Create(ctx context.Context, p *domain.RoleProfile) error
}

type otpRepo interface {
	Create(ctx context.Context, c *domain.OneTimeCode) error
	Get(ctx context.Context, otpID string) (*domain.OneTimeCode, error)
	DeleteUnusedByAccount(ctx context.Context, accountID string) error
	FindLatestByEmail(ctx context.Context, email string, now time.Time) (*domain.OneTimeCode, error)
	IncrementAttempts(ctx context.Context, otpID string, max int) (int, error)
	MarkUsed(ctx context.Context, otpID string) error
	ConsumeIfUnused(ctx context.Context, otpID string, max int) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// repos is the storage selected by STORE_DRIVER.
type repos struct {
	tx       txn.Manager
	accounts accountRepo
	profiles profileRepo
	otps     otpRepo
}

type eventPublisher interface {
	Publish(ctx context.Context, e domain.AccountEvent) error
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	transport, err := newMailTransport(cfg)
	if err != nil {
		return err
	}
	events, err := newEventPublisher(ctx, cfg)
	if err != nil {
		return err
	}

	tokens := jwtinfra.NewProvider(cfg.Tokens)
	hasher := password.NewHasher(cfg.BcryptCost)
	mailer := mail.NewDispatcher(transport, cfg.ClientURL, mail.TTLs{
		Verification: cfg.Tokens.EmailVerificationTTL,
		OTP:          cfg.OTP.TTL,
		Reset:        cfg.Tokens.PasswordResetTTL,
	})

	sessionSvc := session.NewService(session.ServiceDeps{
		AccountRepo: store.accounts,
		Hasher:      hasher,
		Tokens:      tokens,
	})
	deps := &transporthttp.Deps{
		Accounts: account.NewService(account.ServiceDeps{
			TxManager:   store.tx,
			AccountRepo: store.accounts,
			ProfileRepo: store.profiles,
			Hasher:      hasher,
			Tokens:      tokens,
			Mailer:      mailer,
			Events:      events,
		}),
		Sessions: sessionSvc,
		Auth: auth.NewService(auth.ServiceDeps{
			AccountRepo: store.accounts,
			Hasher:      hasher,
			Tokens:      tokens,
			Sessions:    sessionSvc,
			Mailer:      mailer,
			Events:      events,
		}),
		OTP: otp.NewService(otp.ServiceDeps{
			TxManager:   store.tx,
			AccountRepo: store.accounts,
			OTPRepo:     store.otps,
			Hasher:      hasher,
			Sessions:    sessionSvc,
			Mailer:      mailer,
			Events:      events,
			TTL:         cfg.OTP.TTL,
			Cooldown:    cfg.OTP.Cooldown,
			MaxAttempts: cfg.OTP.MaxAttempts,
		}),
		AccountRepo: store.accounts,
		Tokens:      tokens,
	}

	go otp.NewSweeper(store.otps, cfg.OTP.SweepInterval).Run(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreDriver, "mail", cfg.MailProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (*repos, error) {
	if cfg.StoreDriver == "memory" {
		slog.Warn("using in-memory store; data is lost on restart")
		s := memory.New()
		return &repos{tx: s, accounts: s.Accounts(), profiles: s.Profiles(), otps: s.OTPs()}, nil
	}

	client, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dynamodb client: %w", err)
	}
	// Creates the tables if they don't exist.
	dynamo.Bootstrap(ctx, client, cfg.DynamoTables)

	tx := dynamo.NewTxManager(client)
	t := cfg.DynamoTables
	return &repos{
		tx:       tx,
		accounts: dynamo.NewAccountRepo(client, tx, t.Accounts, t.AccountEmails),
		profiles: dynamo.NewProfileRepo(client, tx, t.RoleProfiles),
		otps:     dynamo.NewOTPRepo(client, tx, t.OTPRecords),
	}, nil
}

func newMailTransport(cfg *config.Config) (mail.Transport, error) {
	switch cfg.MailProvider {
	case "mailgun":
		return mailgun.NewSender(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunFrom)
	case "sendgrid":
		return sendgrid.NewSender(cfg.SendGridAPIKey, cfg.SendGridFrom)
	default:
		return smtp.NewMailer(cfg), nil
	}
}

// newEventPublisher returns an SNS publisher, or a no-op one when no topic is configured.
func newEventPublisher(ctx context.Context, cfg *config.Config) (eventPublisher, error) {
	if cfg.SNSEventsTopicARN == "" {
		return sns.Discard{}, nil
	}
	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, fmt.Errorf("sns config: %w", err)
	}
	return sns.NewPublisher(awsCfg, cfg.SNSEventsTopicARN, cfg.AWSEndpointURL), nil
}

func setupLogger(cfg *config.Config) {
	var h slog.Handler
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(h))
}
