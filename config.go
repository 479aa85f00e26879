package authgate

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/MrEthical07/authgate/origin"
)

// Config is the library-level configuration of an [Engine]. Start from
// [DefaultConfig] and override what differs.
type Config struct {
	Session   SessionConfig
	Cookies   CookieConfig
	Origins   []origin.Entry
	OAuth     OAuthConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and Redis key layout.
type SessionConfig struct {
	// TTL is the full lifetime of a session. Validation slides it forward
	// once less than half remains.
	TTL         time.Duration
	KeyPrefix   string
	IndexPrefix string
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the cookies set by the engine's HTTP surfaces.
type CookieConfig struct {
	// Secure marks every cookie Secure. Turn on in production.
	Secure bool
	// FlowMaxAge bounds the sign-in handshake cookies.
	FlowMaxAge time.Duration
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig holds provider-independent sign-in settings.
type OAuthConfig struct {
	// BackendURL is the public base URL of this service, used to build
	// provider callback URLs.
	BackendURL      string
	ProviderTimeout time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig bounds how many sign-in flows one client IP may start
// per window. FlowLimit 0 disables the check.
type RateLimitConfig struct {
	FlowLimit  int
	FlowWindow time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: 30 day sessions with
// the u_s/s_u key prefixes, 10 minute handshake cookies and a 10 second
// provider timeout.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:         30 * 24 * time.Hour,
			KeyPrefix:   "u_s",
			IndexPrefix: "s_u",
		},
		Cookies: CookieConfig{
			FlowMaxAge: 10 * time.Minute,
		},
		OAuth: OAuthConfig{
			ProviderTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			FlowLimit:  30,
			FlowWindow: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Origins = append([]origin.Entry(nil), cfg.Origins...)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Session.TTL < time.Minute {
		return errors.New("Session TTL must be >= 1m")
	}
	if c.Session.KeyPrefix == "" || c.Session.IndexPrefix == "" {
		return errors.New("Session KeyPrefix and IndexPrefix must be set")
	}
	if c.Session.KeyPrefix == c.Session.IndexPrefix {
		return errors.New("Session KeyPrefix and IndexPrefix must differ")
	}

	if c.Cookies.FlowMaxAge <= 0 {
		return errors.New("Cookies FlowMaxAge must be > 0")
	}

	if len(c.Origins) == 0 {
		return errors.New("at least one allowed origin is required")
	}

	if c.OAuth.BackendURL != "" {
		u, err := url.Parse(c.OAuth.BackendURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("OAuth BackendURL %q must be an absolute URL", c.OAuth.BackendURL)
		}
	}
	if c.OAuth.ProviderTimeout <= 0 {
		return errors.New("OAuth ProviderTimeout must be > 0")
	}

	if c.RateLimit.FlowLimit < 0 {
		return errors.New("RateLimit FlowLimit must be >= 0")
	}
	if c.RateLimit.FlowLimit > 0 && c.RateLimit.FlowWindow <= 0 {
		return errors.New("RateLimit FlowWindow must be > 0 when FlowLimit is set")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
