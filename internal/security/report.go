package security

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// Report summarises the security posture of a built engine.
type Report struct {
	SecureCookies       bool
	SessionTTL          time.Duration
	ExtendAfter         time.Duration
	FlowCookieMaxAge    time.Duration
	Providers           []string
	PKCEProviders       []string
	Origins             []string
	FlowRateLimitActive bool
	AuditEnabled        bool
	MetricsEnabled      bool
	Warnings            Warnings
}

// ProviderInput describes one registered provider.
type ProviderInput struct {
	Name string
	PKCE bool
}

type ReportInput struct {
	SecureCookies    bool
	SessionTTL       time.Duration
	FlowCookieMaxAge time.Duration
	BackendURL       string
	Origins          []string
	Providers        []ProviderInput
	FlowLimit        int
	FlowWindow       time.Duration
	AuditEnabled     bool
	AuditDropIfFull  bool
	MetricsEnabled   bool
}

func BuildReport(input ReportInput) Report {
	r := Report{
		SecureCookies:       input.SecureCookies,
		SessionTTL:          input.SessionTTL,
		ExtendAfter:         input.SessionTTL / 2,
		FlowCookieMaxAge:    input.FlowCookieMaxAge,
		Origins:             append([]string(nil), input.Origins...),
		FlowRateLimitActive: input.FlowLimit > 0 && input.FlowWindow > 0,
		AuditEnabled:        input.AuditEnabled,
		MetricsEnabled:      input.MetricsEnabled,
		Warnings:            Lint(input),
	}
	for _, p := range input.Providers {
		r.Providers = append(r.Providers, p.Name)
		if p.PKCE {
			r.PKCEProviders = append(r.PKCEProviders, p.Name)
		}
	}
	sort.Strings(r.Providers)
	sort.Strings(r.PKCEProviders)
	return r
}

// Severity ranks a lint warning.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityHigh:
		return "high"
	}
	return "unknown"
}

// Warning is one questionable setting. Code is stable and meant for
// filtering.
type Warning struct {
	Code     string
	Severity Severity
	Message  string
}

// Warnings is a list of lint results.
type Warnings []Warning

// Codes returns the code of every warning in order.
func (ws Warnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// longSessionTTL is the session lifetime past which Lint reports
// session_ttl_long.
const longSessionTTL = 90 * 24 * time.Hour

// Lint reports settings that are valid but risky in production.
func Lint(input ReportInput) Warnings {
	var ws Warnings

	if !input.SecureCookies {
		ws = append(ws, Warning{
			Code:     "insecure_cookies",
			Severity: SeverityHigh,
			Message:  "cookies are sent without the Secure flag",
		})
	}
	for _, o := range input.Origins {
		if isPlainHTTP(o) {
			ws = append(ws, Warning{
				Code:     "http_origin",
				Severity: SeverityWarn,
				Message:  "allowed origin " + o + " is not https",
			})
		}
	}
	if input.BackendURL != "" && isPlainHTTP(input.BackendURL) {
		ws = append(ws, Warning{
			Code:     "http_backend",
			Severity: SeverityWarn,
			Message:  "provider callbacks use plain http",
		})
	}
	if input.SessionTTL > longSessionTTL {
		ws = append(ws, Warning{
			Code:     "session_ttl_long",
			Severity: SeverityWarn,
			Message:  "sessions live longer than 90 days",
		})
	}
	if input.FlowLimit <= 0 {
		ws = append(ws, Warning{
			Code:     "flow_rate_limit_disabled",
			Severity: SeverityWarn,
			Message:  "sign-in starts are not rate limited",
		})
	}
	if !input.AuditEnabled {
		ws = append(ws, Warning{
			Code:     "audit_disabled",
			Severity: SeverityInfo,
			Message:  "audit events are disabled",
		})
	} else if input.AuditDropIfFull {
		ws = append(ws, Warning{
			Code:     "audit_may_drop",
			Severity: SeverityInfo,
			Message:  "audit events are dropped when the buffer is full",
		})
	}
	return ws
}

// isPlainHTTP reports an http:// URL that is not loopback.
func isPlainHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Scheme, "http") {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return false
	}
	return true
}
