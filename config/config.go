package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AuthModeOIDC = "oidc"
	AuthModeHMAC = "hmac"
)

type Config struct {
	Env  string
	Port string

	MongoURI string
	DBName   string

	AuthMode                string
	FirebaseProjectID       string
	FirebaseCredentialsFile string
	JWTSecret               string

	StripeSecretKey    string
	SiteDomain         string
	PaymentCurrency    string
	SubscriptionAmount int64
	BoostAmount        int64

	AllowedOrigins []string
	FreeIssueQuota int64
	RequestTimeout time.Duration

	RedisAddress     string
	RedisPassword    string
	IssueDailyLimit  int
	IssueLimitPrefix string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("GO_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_NAME", "city_fix_db")
	v.SetDefault("AUTH_MODE", AuthModeOIDC)
	v.SetDefault("SITE_DOMAIN", "http://localhost:5173")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("PAYMENT_CURRENCY", "usd")
	v.SetDefault("SUBSCRIPTION_AMOUNT", 1000)
	v.SetDefault("BOOST_AMOUNT", 100)
	v.SetDefault("FREE_ISSUE_QUOTA", 3)
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("ISSUE_DAILY_LIMIT", 0)
	v.SetDefault("REDIS_QUEUE_FOR_ISSUE_LIMIT", "issue-limit")

	cfg := &Config{
		Env:                     v.GetString("GO_ENV"),
		Port:                    v.GetString("PORT"),
		MongoURI:                v.GetString("MONGODB_URI"),
		DBName:                  v.GetString("DB_NAME"),
		AuthMode:                strings.ToLower(v.GetString("AUTH_MODE")),
		FirebaseProjectID:       v.GetString("FIREBASE_PROJECT_ID"),
		FirebaseCredentialsFile: v.GetString("FIREBASE_CREDENTIALS_FILE"),
		JWTSecret:               v.GetString("JWT_SECRET"),
		StripeSecretKey:         v.GetString("STRIPE_SECRET_KEY"),
		SiteDomain:              strings.TrimRight(v.GetString("SITE_DOMAIN"), "/"),
		PaymentCurrency:         strings.ToLower(v.GetString("PAYMENT_CURRENCY")),
		SubscriptionAmount:      v.GetInt64("SUBSCRIPTION_AMOUNT"),
		BoostAmount:             v.GetInt64("BOOST_AMOUNT"),
		AllowedOrigins:          splitList(v.GetString("ALLOWED_ORIGINS")),
		FreeIssueQuota:          v.GetInt64("FREE_ISSUE_QUOTA"),
		RequestTimeout:          v.GetDuration("REQUEST_TIMEOUT"),
		RedisAddress:            v.GetString("REDIS_ADDRESS"),
		RedisPassword:           v.GetString("REDIS_PASSWORD"),
		IssueDailyLimit:         v.GetInt("ISSUE_DAILY_LIMIT"),
		IssueLimitPrefix:        v.GetString("REDIS_QUEUE_FOR_ISSUE_LIMIT"),
	}
	if cfg.MongoURI == "" {
		cfg.MongoURI = mongoURIFromParts(v.GetString("DB_USER"), v.GetString("DB_PASS"), v.GetString("DB_HOST"))
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks the settings the server cannot start without. memory skips
// the database requirements.
func (c *Config) Validate(memory bool) error {
	var errs []error
	if !memory && c.MongoURI == "" {
		errs = append(errs, errors.New("please define MONGODB_URI or DB_USER, DB_PASS and DB_HOST"))
	}
	switch c.AuthMode {
	case AuthModeOIDC:
		if c.FirebaseProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required when AUTH_MODE=oidc"))
		}
	case AuthModeHMAC:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required when AUTH_MODE=hmac"))
		}
		if c.IsProduction() {
			errs = append(errs, errors.New("AUTH_MODE=hmac is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode))
	}
	if c.StripeSecretKey == "" && !memory {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.SubscriptionAmount <= 0 || c.BoostAmount <= 0 {
		errs = append(errs, errors.New("SUBSCRIPTION_AMOUNT and BOOST_AMOUNT must be positive"))
	}
	if c.FreeIssueQuota <= 0 {
		errs = append(errs, errors.New("FREE_ISSUE_QUOTA must be positive"))
	}
	if c.IssueDailyLimit > 0 && c.RedisAddress == "" {
		errs = append(errs, errors.New("REDIS_ADDRESS is required when ISSUE_DAILY_LIMIT is set"))
	}
	return errors.Join(errs...)
}

// NewLogger installs the process-wide slog logger: JSON in production, text
// otherwise.
func NewLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(handler).With("service", "cityfix-be")
	slog.SetDefault(logger)
	return logger
}

func mongoURIFromParts(user, pass, host string) string {
	if user == "" || pass == "" || host == "" {
		return ""
	}
	return fmt.Sprintf("mongodb+srv://%s:%s@%s/?retryWrites=true&w=majority",
		url.QueryEscape(user), url.QueryEscape(pass), host)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
