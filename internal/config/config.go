package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const minProductionSecretLen = 32

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"Mahalle"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	Migrate        bool          `env:"DATABASE_MIGRATE" envDefault:"true"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	RateLimitPerIP int           `env:"RATE_LIMIT_PER_IP" envDefault:"60"`

	OTP OTP `envPrefix:"OTP_"`
	JWT JWT `envPrefix:"JWT_"`
	SMS SMS `envPrefix:"SMS_"`
}

// OTP holds one-time code policy.
type OTP struct {
	TTL         time.Duration `env:"TTL" envDefault:"300s"`
	HourlyLimit int           `env:"HOURLY_LIMIT" envDefault:"10"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	Lockout     time.Duration `env:"LOCKOUT" envDefault:"5m"`
	ResendAfter time.Duration `env:"RESEND_AFTER" envDefault:"60s"`
	DevMode     bool          `env:"DEV_MODE" envDefault:"false"`
	DevCode     string        `env:"DEV_CODE" envDefault:"123456"`
}

// JWT holds signing secrets and token lifetimes.
type JWT struct {
	AccessSecret    string        `env:"ACCESS_SECRET"`
	RefreshSecret   string        `env:"REFRESH_SECRET"`
	AccessTTL       time.Duration `env:"ACCESS_TTL" envDefault:"720h"`
	RefreshTTL      time.Duration `env:"REFRESH_TTL" envDefault:"2160h"`
	RegistrationTTL time.Duration `env:"REGISTRATION_TTL" envDefault:"30m"`
	Issuer          string        `env:"ISSUER" envDefault:"mahalle-auth"`
}

// SMS selects and configures the outbound SMS driver.
type SMS struct {
	Driver       string        `env:"DRIVER" envDefault:"log"`
	GatewayURL   string        `env:"GATEWAY_URL"`
	APIKey       string        `env:"API_KEY"`
	Sender       string        `env:"SENDER" envDefault:"MAHALLE"`
	KafkaBrokers []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string        `env:"KAFKA_TOPIC" envDefault:"sms.outbound"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

// Load reads an optional .env file, parses the environment and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.SMS.Driver = strings.ToLower(cfg.SMS.Driver)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that must never run.
func (c Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must be set"))
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.OTP.TTL <= 0 || c.OTP.Lockout <= 0 {
		errs = append(errs, errors.New("OTP_TTL and OTP_LOCKOUT must be positive"))
	}
	if c.OTP.HourlyLimit <= 0 || c.OTP.MaxAttempts <= 0 {
		errs = append(errs, errors.New("OTP_HOURLY_LIMIT and OTP_MAX_ATTEMPTS must be positive"))
	}
	if c.OTP.DevMode && !validCode(c.OTP.DevCode) {
		errs = append(errs, errors.New("OTP_DEV_CODE must be six digits"))
	}

	switch c.SMS.Driver {
	case "log":
	case "http":
		if c.SMS.GatewayURL == "" {
			errs = append(errs, errors.New("SMS_GATEWAY_URL must be set for the http driver"))
		}
	case "kafka":
		if len(c.SMS.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("SMS_KAFKA_BROKERS must be set for the kafka driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SMS_DRIVER %q", c.SMS.Driver))
	}

	if c.IsProduction() {
		if c.OTP.DevMode {
			errs = append(errs, errors.New("OTP_DEV_MODE cannot be enabled when APP_ENV=production"))
		}
		if len(c.JWT.AccessSecret) < minProductionSecretLen || len(c.JWT.RefreshSecret) < minProductionSecretLen {
			errs = append(errs, fmt.Errorf("jwt secrets must be at least %d bytes in production", minProductionSecretLen))
		}
	}
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv))
		}
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv))
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the deployment is a production one.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.AppEnv) {
	case "prod", "production":
		return true
	}
	return false
}

// IsDev reports whether in-memory fallbacks are allowed.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func validCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
