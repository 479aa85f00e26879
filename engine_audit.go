package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/session"
)

const (
	auditEventOAuthLoginSuccess = "oauth_login_success"
	auditEventOAuthLoginFailure = "oauth_login_failure"
	auditEventUserCreated       = "user_created"
	auditEventSessionCreated    = "session_created"
	auditEventSessionExpired    = "session_expired"
	auditEventLogout            = "logout"
	auditEventLogoutAll         = "logout_all"
	auditEventFlowRateLimited   = "flow_rate_limited"
)

// AuditErrorCode is the stable, secret-free reason recorded in
// [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrRestart         AuditErrorCode = "RESTART"
	auditErrUnverifiedEmail AuditErrorCode = "OAUTH_UNVERIFIED_EMAIL"
	auditErrSameEmail       AuditErrorCode = "SAME_EMAIL_DIFFERENT_PROVIDER"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrUnauthorized    AuditErrorCode = "unauthorized"
	auditErrSessionNotFound AuditErrorCode = "session_not_found"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	providerName string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Time:      time.Now().UTC(),
		Type:      eventType,
		Success:   success,
		UserID:    userID,
		SessionID: sessionID,
		Provider:  providerName,
		IP:        ClientIPFromContext(ctx),
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		switch authErr.Key {
		case KeyRestart:
			return auditErrRestart
		case KeyUnverifiedEmail:
			return auditErrUnverifiedEmail
		case KeySameEmailDifferentProvider:
			return auditErrSameEmail
		}
	}

	switch {
	case errors.Is(err, ErrFlowRateLimited), errors.Is(err, rate.ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, session.ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, session.ErrStoreUnavailable), errors.Is(err, rate.ErrRedisUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
