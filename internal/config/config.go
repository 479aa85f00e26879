// Package config loads the service configuration from the environment and an
// optional .env file using Viper, and maps it onto authgate.Config.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/origin"
	"github.com/spf13/viper"
)

// Environments accepted in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Values of AUDIT_SINK.
const (
	AuditSinkLog    = "log"
	AuditSinkStdout = "stdout"
)

// Config holds the service configuration.
type Config struct {
	// HTTPAddr is the address of the public API listener.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// MetricsAddr serves /metrics. Empty disables the listener.
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	// Env is development or production. Production turns on Secure cookies
	// and JSON logs.
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	TrustProxy bool `mapstructure:"TRUST_PROXY"`

	// BackendURL is the public base URL of this service; provider callbacks
	// are built from it.
	BackendURL       string `mapstructure:"BACKEND_URL"`
	FrontendURL      string `mapstructure:"FRONTEND_URL"`
	AdminFrontendURL string `mapstructure:"ADMIN_FRONTEND_URL"`
	// AllowedOrigins is a comma-separated list of extra origins.
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	RedisURL string `mapstructure:"REDIS_URL"`
	// DatabaseURL is postgres://... or sqlite://path.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	SessionExpiryDays  int    `mapstructure:"SESSION_EXPIRY_TIME_IN_DAYS"`
	SessionKeyPrefix   string `mapstructure:"SESSION_KEY_PREFIX"`
	SessionIndexPrefix string `mapstructure:"SESSION_INDEX_PREFIX"`

	GoogleClientID     string `mapstructure:"AUTH_GOOGLE_ID"`
	GoogleClientSecret string `mapstructure:"AUTH_GOOGLE_SECRET"`
	GitHubClientID     string `mapstructure:"AUTH_GITHUB_ID"`
	GitHubClientSecret string `mapstructure:"AUTH_GITHUB_SECRET"`

	ProviderTimeout time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	FlowRateLimit   int           `mapstructure:"FLOW_RATE_LIMIT"`
	FlowRateWindow  time.Duration `mapstructure:"FLOW_RATE_WINDOW"`

	AuditEnabled bool `mapstructure:"AUDIT_ENABLED"`
	AuditBuffer  int  `mapstructure:"AUDIT_BUFFER"`
	// AuditSink is "log" (through the service logger) or "stdout" (JSON
	// lines).
	AuditSink string `mapstructure:"AUDIT_SINK"`

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint    string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Environment variables override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	v := newViper(path)

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("BACKEND_URL", "")
	v.SetDefault("FRONTEND_URL", "")
	v.SetDefault("ADMIN_FRONTEND_URL", "")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_EXPIRY_TIME_IN_DAYS", 30)
	v.SetDefault("SESSION_KEY_PREFIX", "u_s")
	v.SetDefault("SESSION_INDEX_PREFIX", "s_u")
	v.SetDefault("AUTH_GOOGLE_ID", "")
	v.SetDefault("AUTH_GOOGLE_SECRET", "")
	v.SetDefault("AUTH_GITHUB_ID", "")
	v.SetDefault("AUTH_GITHUB_SECRET", "")
	v.SetDefault("PROVIDER_TIMEOUT", "10s")
	v.SetDefault("FLOW_RATE_LIMIT", 30)
	v.SetDefault("FLOW_RATE_WINDOW", "1m")
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("AUDIT_BUFFER", 1024)
	v.SetDefault("AUDIT_SINK", AuditSinkLog)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDatabaseURL reads only DATABASE_URL, for tools that do not need the
// full service configuration.
func LoadDatabaseURL(path string) (string, error) {
	v := newViper(path)
	v.SetDefault("DATABASE_URL", "")
	dsn := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if dsn == "" {
		return "", errors.New("config: DATABASE_URL must be set")
	}
	return dsn, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing file is fine

	v.AutomaticEnv()
	return v
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("config: APP_ENV must be %q or %q", EnvDevelopment, EnvProduction)
	}
	if !isAbsoluteURL(c.BackendURL) {
		return errors.New("config: BACKEND_URL must be an absolute URL")
	}
	if c.FrontendURL == "" && c.AdminFrontendURL == "" && c.AllowedOrigins == "" {
		return errors.New("config: at least one of FRONTEND_URL, ADMIN_FRONTEND_URL or ALLOWED_ORIGINS must be set")
	}
	if _, err := origin.NewRegistry(c.Origins()...); err != nil {
		return fmt.Errorf("config: allowed origins: %w", err)
	}
	if c.RedisURL == "" {
		return errors.New("config: REDIS_URL must be set")
	}
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	if c.AuditSink != AuditSinkLog && c.AuditSink != AuditSinkStdout {
		return fmt.Errorf("config: AUDIT_SINK must be %q or %q", AuditSinkLog, AuditSinkStdout)
	}
	if c.SessionExpiryDays < 1 {
		return errors.New("config: SESSION_EXPIRY_TIME_IN_DAYS must be >= 1")
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return errors.New("config: AUTH_GOOGLE_ID and AUTH_GOOGLE_SECRET must be set together")
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		return errors.New("config: AUTH_GITHUB_ID and AUTH_GITHUB_SECRET must be set together")
	}
	if !c.GoogleEnabled() && !c.GitHubEnabled() {
		return errors.New("config: at least one of AUTH_GOOGLE_ID or AUTH_GITHUB_ID must be set")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != ""
}

// Origins returns the allowed origins: FRONTEND_URL, ADMIN_FRONTEND_URL and
// each ALLOWED_ORIGINS item, with the default page paths.
func (c *Config) Origins() []origin.Entry {
	var out []origin.Entry
	seen := map[string]bool{}
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || seen[raw] {
			return
		}
		seen[raw] = true
		out = append(out, origin.Entry{Origin: raw})
	}

	add(c.FrontendURL)
	add(c.AdminFrontendURL)
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		add(o)
	}
	return out
}

// Engine maps the service configuration onto the library configuration.
func (c *Config) Engine() authgate.Config {
	cfg := authgate.DefaultConfig()
	cfg.Session.TTL = time.Duration(c.SessionExpiryDays) * 24 * time.Hour
	cfg.Session.KeyPrefix = c.SessionKeyPrefix
	cfg.Session.IndexPrefix = c.SessionIndexPrefix
	cfg.Cookies.Secure = c.IsProduction()
	cfg.Origins = c.Origins()
	cfg.OAuth.BackendURL = c.BackendURL
	cfg.OAuth.ProviderTimeout = c.ProviderTimeout
	cfg.RateLimit.FlowLimit = c.FlowRateLimit
	cfg.RateLimit.FlowWindow = c.FlowRateWindow
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Audit.BufferSize = c.AuditBuffer
	return cfg
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
