package authgate

import (
	"context"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OAuthCallback is a provider callback whose cookies and state already
// checked out.
type OAuthCallback struct {
	Provider     string
	Code         string
	CodeVerifier string
	// Method is "login" or "register". It is recorded, not enforced.
	Method string
}

// OAuthResult is a completed sign-in.
type OAuthResult struct {
	User    *identity.User
	Session *session.Session
	// Token is the bearer value for the session cookie. Only its digest
	// is stored.
	Token   string
	Created bool
}

// CompleteOAuth exchanges the code, resolves or creates the user and
// issues a session. Every failure is an *[AuthError] whose Key is what
// the user should see.
func (e *Engine) CompleteOAuth(ctx context.Context, cb OAuthCallback) (*OAuthResult, error) {
	if e == nil {
		return nil, NewAuthError(KeyDefault, ErrEngineNotReady)
	}

	ctx, span := e.tracer.Start(ctx, "authgate.CompleteOAuth",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("oauth.provider", cb.Provider),
			attribute.String("oauth.method", cb.Method),
		),
	)
	defer span.End()

	p, err := e.Provider(cb.Provider)
	if err != nil {
		authErr := NewAuthError(KeyRestart, err)
		e.failOAuth(ctx, span, cb, authErr)
		return nil, authErr
	}

	res := flows.RunOAuthLogin(ctx, flows.OAuthLoginInput{
		Provider:     p,
		Code:         cb.Code,
		CodeVerifier: cb.CodeVerifier,
	}, e.flows.OAuthLogin)

	if res.Failure != flows.OAuthLoginFailureNone {
		authErr := NewAuthError(keyForFailure(res.Failure), res.Err)
		e.failOAuth(ctx, span, cb, authErr)
		return nil, authErr
	}

	if res.Created {
		e.metricInc(MetricUserCreated)
		e.emitAudit(ctx, auditEventUserCreated, true, res.User.ID, "", cb.Provider, nil, nil)
	}
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, res.User.ID, res.Session.ID, cb.Provider, nil, nil)
	e.metricInc(MetricCallbackSuccess)
	e.emitAudit(ctx, auditEventOAuthLoginSuccess, true, res.User.ID, res.Session.ID, cb.Provider, nil, func() map[string]string {
		return map[string]string{"method": cb.Method}
	})

	span.SetAttributes(
		attribute.String("user.id", res.User.ID),
		attribute.Bool("user.created", res.Created),
	)
	span.SetStatus(codes.Ok, "")

	return &OAuthResult{
		User:    res.User,
		Session: res.Session,
		Token:   res.Token,
		Created: res.Created,
	}, nil
}

func (e *Engine) failOAuth(ctx context.Context, span trace.Span, cb OAuthCallback, authErr *AuthError) {
	switch authErr.Key {
	case KeyRestart:
		e.metricInc(MetricCallbackRestart)
		e.logger.Info("oauth callback restart", zap.String("provider", cb.Provider), zap.Error(authErr.Cause))
	case KeyUnverifiedEmail:
		e.metricInc(MetricCallbackUnverifiedEmail)
	case KeySameEmailDifferentProvider:
		e.metricInc(MetricCallbackSameEmail)
	case KeyDefault:
		e.metricInc(MetricCallbackFailure)
		e.logger.Error("oauth callback failed", zap.String("provider", cb.Provider), zap.Error(authErr.Cause))
	}

	span.RecordError(authErr)
	span.SetStatus(codes.Error, string(authErr.Key))

	e.emitAudit(ctx, auditEventOAuthLoginFailure, false, "", "", cb.Provider, authErr, func() map[string]string {
		return map[string]string{"method": cb.Method}
	})
}

func keyForFailure(kind flows.OAuthLoginFailureKind) ErrorKey {
	switch kind {
	case flows.OAuthLoginFailureRestart:
		return KeyRestart
	case flows.OAuthLoginFailureUnverifiedEmail:
		return KeyUnverifiedEmail
	case flows.OAuthLoginFailureSameEmail:
		return KeySameEmailDifferentProvider
	default:
		return KeyDefault
	}
}
