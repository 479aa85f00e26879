package authgate

import (
	"github.com/MrEthical07/authgate/internal/security"
)

type SecurityReport = security.Report

// LintWarning is one risky configuration setting reported by [Config.Lint].
type LintWarning = security.Warning

// LintWarnings is the result of [Config.Lint].
type LintWarnings = security.Warnings

// SecurityReport summarises how the engine was configured: cookie flags,
// session lifetime, providers using PKCE, rate limiting and audit, plus
// any lint warnings.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	input := reportInput(e.config)
	for _, name := range e.Providers() {
		input.Providers = append(input.Providers, security.ProviderInput{
			Name: string(name),
			PKCE: e.providers[name].UsesPKCE(),
		})
	}
	return security.BuildReport(input)
}

// Lint reports settings that pass [Config.Validate] but are risky in
// production, such as cookies without Secure or plain-http origins.
func (c *Config) Lint() LintWarnings {
	return security.Lint(reportInput(*c))
}

func reportInput(cfg Config) security.ReportInput {
	origins := make([]string, 0, len(cfg.Origins))
	for _, o := range cfg.Origins {
		origins = append(origins, o.Origin)
	}
	return security.ReportInput{
		SecureCookies:    cfg.Cookies.Secure,
		SessionTTL:       cfg.Session.TTL,
		FlowCookieMaxAge: cfg.Cookies.FlowMaxAge,
		BackendURL:       cfg.OAuth.BackendURL,
		Origins:          origins,
		FlowLimit:        cfg.RateLimit.FlowLimit,
		FlowWindow:       cfg.RateLimit.FlowWindow,
		AuditEnabled:     cfg.Audit.Enabled,
		AuditDropIfFull:  cfg.Audit.DropIfFull,
		MetricsEnabled:   cfg.Metrics.Enabled,
	}
}
