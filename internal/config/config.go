package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort     string
	AppEnv      string
	StoreDriver string // dynamo | memory

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	Tokens     Tokens
	BcryptCost int
	OTP        OTP

	ClientURL    string
	MailProvider string // smtp | mailgun | sendgrid
	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	MailgunDomain string
	MailgunAPIKey string
	MailgunFrom   string

	SendGridAPIKey string
	SendGridFrom   string

	SNSRegion         string
	SNSEventsTopicARN string // events are not published when empty

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Accounts      string
	AccountEmails string
	RoleProfiles  string
	OTPRecords    string
}

// Tokens holds one signing secret and lifetime per token purpose.
type Tokens struct {
	AccessSecret            string
	RefreshSecret           string
	EmailVerificationSecret string
	PasswordResetSecret     string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	EmailVerificationTTL    time.Duration
	PasswordResetTTL        time.Duration
}

type OTP struct {
	TTL           time.Duration
	Cooldown      time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:     getEnv("APP_PORT", "3000"),
		AppEnv:      getEnv("APP_ENV", "development"),
		StoreDriver: getEnv("STORE_DRIVER", "dynamo"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Accounts:      getEnv("DYNAMO_TABLE_ACCOUNTS", "accounts"),
			AccountEmails: getEnv("DYNAMO_TABLE_ACCOUNT_EMAILS", "account_emails"),
			RoleProfiles:  getEnv("DYNAMO_TABLE_ROLE_PROFILES", "role_profiles"),
			OTPRecords:    getEnv("DYNAMO_TABLE_OTP_RECORDS", "otp_records"),
		},

		Tokens: Tokens{
			AccessSecret:            getEnv("JWT_ACCESS_SECRET", "dev-access-secret"),
			RefreshSecret:           getEnv("JWT_REFRESH_SECRET", "dev-refresh-secret"),
			EmailVerificationSecret: getEnv("EMAIL_VERIFICATION_SECRET", "dev-email-verification-secret"),
			PasswordResetSecret:     getEnv("PASSWORD_RESET_SECRET", "dev-password-reset-secret"),
			AccessTTL:               getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTTL:              getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			EmailVerificationTTL:    getEnvDuration("EMAIL_VERIFICATION_TTL", 15*time.Minute),
			PasswordResetTTL:        getEnvDuration("PASSWORD_RESET_TTL", 15*time.Minute),
		},
		BcryptCost: getEnvInt("BCRYPT_COST", 10),
		OTP: OTP{
			TTL:           getEnvDuration("OTP_TTL", 10*time.Minute),
			Cooldown:      getEnvDuration("OTP_COOLDOWN", time.Minute),
			MaxAttempts:   getEnvInt("OTP_MAX_ATTEMPTS", 3),
			SweepInterval: getEnvDuration("OTP_SWEEP_INTERVAL", 15*time.Minute),
		},

		ClientURL:    strings.TrimRight(getEnv("CLIENT_URL", "http://localhost:3000"), "/"),
		MailProvider: getEnv("MAIL_PROVIDER", "smtp"),
		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		MailgunDomain: getEnv("MAILGUN_DOMAIN", ""),
		MailgunAPIKey: getEnv("MAILGUN_API_KEY", ""),
		MailgunFrom:   getEnv("MAILGUN_FROM", ""),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		SendGridFrom:   getEnv("SENDGRID_FROM", ""),

		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),
		SNSEventsTopicARN: getEnv("SNS_EVENTS_TOPIC_ARN", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// Validate checks settings that would make the service unsafe or unable to start.
// Development builds may run on the default secrets.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "dynamo", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be dynamo or memory, got %q", c.StoreDriver))
	}
	switch c.MailProvider {
	case "smtp":
	case "mailgun":
		if c.MailgunDomain == "" || c.MailgunAPIKey == "" {
			errs = append(errs, errors.New("MAILGUN_DOMAIN and MAILGUN_API_KEY are required for the mailgun provider"))
		}
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY is required for the sendgrid provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_PROVIDER must be smtp, mailgun or sendgrid, got %q", c.MailProvider))
	}
	if c.OTP.MaxAttempts < 1 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be at least 1"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST out of range: %d", c.BcryptCost))
	}

	secrets := map[string]string{
		"JWT_ACCESS_SECRET":         c.Tokens.AccessSecret,
		"JWT_REFRESH_SECRET":        c.Tokens.RefreshSecret,
		"EMAIL_VERIFICATION_SECRET": c.Tokens.EmailVerificationSecret,
		"PASSWORD_RESET_SECRET":     c.Tokens.PasswordResetSecret,
	}
	seen := make(map[string]string, len(secrets))
	for name, s := range secrets {
		if s == "" {
			errs = append(errs, fmt.Errorf("%s is empty", name))
			continue
		}
		if c.IsProduction() {
			if other, dup := seen[s]; dup {
				errs = append(errs, fmt.Errorf("%s and %s must differ", other, name))
			}
			if strings.HasPrefix(s, "dev-") {
				errs = append(errs, fmt.Errorf("%s uses the development default", name))
			}
		}
		seen[s] = name
	}
	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
