package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/keylet/keylet/internal/identity/notify"
)

// Config is the full runtime configuration, populated from the environment.
type Config struct {
	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Port                int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	DatabaseFile   string `env:"IDENTITY_DATABASE_FILE" envDefault:"identity.db"`
	PepperFile     string `env:"IDENTITY_PEPPER_FILE" envDefault:"pepper"`
	SigningKeyFile string `env:"IDENTITY_SIGNING_KEY_FILE"`
	SigningKeyID   string `env:"IDENTITY_SIGNING_KID" envDefault:"primary"`

	Issuer     string        `env:"IDENTITY_ISSUER" envDefault:"keylet-identity"`
	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"168h"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	CodeTTL         time.Duration `env:"OTP_CODE_TTL" envDefault:"10m"`
	MaxCodeAttempts int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	LockThreshold   int           `env:"LOGIN_LOCK_THRESHOLD" envDefault:"5"`
	LockCooldown    time.Duration `env:"LOGIN_LOCK_COOLDOWN" envDefault:"30m"`
	ResetTTL        time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"10m"`

	TwoFactorIssuer              string `env:"TWOFACTOR_ISSUER" envDefault:"Keylet"`
	TwoFactorDisableRequiresCode bool   `env:"TWOFACTOR_DISABLE_REQUIRES_CODE" envDefault:"false"`

	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`

	Mail notify.MailConfig
	SMS  notify.SMSConfig
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// IsProd reports whether the service runs with production hardening
// (secure cookies, strict SameSite).
func (c Config) IsProd() bool { return c.Env == "prod" }
