package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// ErrMissingSessionSecret is returned when SESSION_SECRET is empty.
var ErrMissingSessionSecret = errors.New("SESSION_SECRET is not set")

// Config holds all configuration for the application
type Config struct {
	Port        string
	DBDriver    string // postgres | sqlite
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	SessionSecret string
	SessionTTL    time.Duration
	CookieSecure  bool
	CORSOrigins   []string
	// TrustedProxies may set X-Forwarded-For. Empty means the peer address
	// is the client IP.
	TrustedProxies []string

	LoginMaxAttempts   int
	LoginLockoutWindow time.Duration
	TwoFactorTTL       time.Duration
	PasswordResetTTL   time.Duration
	BcryptCost         int
	AuthRatePerSecond  float64
	AuthRateBurst      int

	UploadMaxBytes int64

	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	SMTPSender string
	AppBaseURL string

	OpenAIAPIKey string
	OpenAIModel  string
}

// LoadConfig reads configuration from environment variables (.env file)
func LoadConfig() (*Config, error) {
	// In production the variables are set directly, a missing .env is fine.
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    p.duration("SESSION_TTL", 12*time.Hour),
		CookieSecure:  p.boolean("COOKIE_SECURE", true),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),

		LoginMaxAttempts:   p.integer("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockoutWindow: p.duration("LOGIN_LOCKOUT_WINDOW", 15*time.Minute),
		TwoFactorTTL:       p.duration("TWO_FACTOR_TTL", 10*time.Minute),
		PasswordResetTTL:   p.duration("PASSWORD_RESET_TTL", time.Hour),
		BcryptCost:         p.integer("BCRYPT_COST", bcrypt.DefaultCost),
		AuthRatePerSecond:  p.float("AUTH_RATE_PER_SECOND", 2),
		AuthRateBurst:      p.integer("AUTH_RATE_BURST", 10),

		UploadMaxBytes: int64(p.integer("UPLOAD_MAX_BYTES", 20<<20)),

		SMTPHost:   getEnv("SMTP_HOST", ""),
		SMTPPort:   p.integer("SMTP_PORT", 465),
		SMTPUser:   getEnv("SMTP_USER", ""),
		SMTPPass:   getEnv("SMTP_PASS", ""),
		SMTPSender: getEnv("SMTP_SENDER", "no-reply@localhost"),
		AppBaseURL: strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:5173"), "/"),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-5.1"),
	}

	if p.err != nil {
		return nil, p.err
	}

	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	for _, proxy := range cfg.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", proxy)
			}
		}
	}

	if cfg.LoginMaxAttempts < 1 {
		return nil, errors.New("LOGIN_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// RequireSessionSecret is checked by the processes that issue sessions.
func (c *Config) RequireSessionSecret() error {
	if c.SessionSecret == "" {
		return ErrMissingSessionSecret
	}
	return nil
}

// SMTPConfigured reports whether outgoing mail can be delivered.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != ""
}

// Helper function to get env var or return default
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser keeps the first conversion error so LoadConfig can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) integer(key string, def int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) boolean(key string, def bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}
