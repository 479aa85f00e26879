package authgate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/origin"
	"github.com/MrEthical07/authgate/provider"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/userstore"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Engine ties sessions, users, providers and origins together. It is safe
// for concurrent use once built by [Builder.Build].
type Engine struct {
	config    Config
	origins   *origin.Registry
	sessions  *session.Manager
	users     userstore.Store
	providers map[provider.Name]provider.Client
	limiter   *rate.Limiter
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
	flows     flows.Deps
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped counts audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// RecordMetric lets HTTP surfaces count events the Engine does not see,
// such as rejected origins.
func (e *Engine) RecordMetric(id MetricID) {
	e.metricInc(id)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Config returns a copy of the configuration the Engine was built with.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) Logger() *zap.Logger {
	return e.logger
}

// Origins returns the allowed origin registry.
func (e *Engine) Origins() *origin.Registry {
	return e.origins
}

// Sessions exposes the session manager for callers that need raw access,
// such as load tests.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Provider looks up a registered provider by name.
func (e *Engine) Provider(name string) (provider.Client, error) {
	p, ok := e.providers[provider.Name(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Providers lists registered provider names in sorted order.
func (e *Engine) Providers() []provider.Name {
	out := make([]provider.Name, 0, len(e.providers))
	for name := range e.providers {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllowFlowStart charges one sign-in attempt to the client IP attached to
// ctx and returns [ErrFlowRateLimited] once its window is exhausted.
func (e *Engine) AllowFlowStart(ctx context.Context, providerName string) error {
	ip := ClientIPFromContext(ctx)
	err := e.limiter.Allow(ctx, ip)
	switch {
	case err == nil:
		e.metricInc(MetricFlowStarted)
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricFlowRateLimited)
		e.emitAudit(ctx, auditEventFlowRateLimited, false, "", "", providerName, ErrFlowRateLimited, nil)
		return ErrFlowRateLimited
	default:
		return err
	}
}

// ValidateSession resolves a session token.
//
// Unknown and expired tokens return an error matching both
// [ErrUnauthorized] and [session.ErrSessionNotFound]. Store failures are
// returned as is and match [session.ErrStoreUnavailable].
func (e *Engine) ValidateSession(ctx context.Context, token string, disableAutoExtend bool) (*session.Session, bool, error) {
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	sess, extended, err := e.sessions.Validate(ctx, token, disableAutoExtend)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			if errors.Is(err, session.ErrSessionExpired) {
				e.metricInc(MetricSessionExpired)
				e.emitAudit(ctx, auditEventSessionExpired, true, "", session.IDFromToken(token), "", nil, nil)
			}
			e.metricInc(MetricUnauthorized)
			return nil, false, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		e.logger.Error("session validation failed", zap.Error(err))
		return nil, false, err
	}

	e.metricInc(MetricSessionValidated)
	if extended {
		e.metricInc(MetricSessionExtended)
	}
	return sess, extended, nil
}

// InvalidateSession deletes one session. Deleting an absent session is
// not an error.
func (e *Engine) InvalidateSession(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return nil
	}
	err := e.sessions.Invalidate(ctx, sess.ID, sess.UserID)
	if err == nil {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogout, err == nil, sess.UserID, sess.ID, "", err, nil)
	return err
}

// InvalidateAllSessions deletes every session of userID and reports how
// many were indexed.
func (e *Engine) InvalidateAllSessions(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}
	n, err := e.sessions.InvalidateAll(ctx, userID)
	if err == nil {
		e.metricInc(MetricLogoutAll)
		for i := 0; i < n; i++ {
			e.metricInc(MetricSessionInvalidated)
		}
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, userID, "", "", err, func() map[string]string {
		return map[string]string{"count": fmt.Sprint(n)}
	})
	return n, err
}

// ListSessions returns the live sessions of userID, oldest first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	return e.sessions.Sessions(ctx, userID)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the session store and, when it supports it, the user store.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.sessions.Store().Ping(ctx); err != nil {
		return err
	}
	if p, ok := e.users.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
