package authgate

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/origin"
	"github.com/MrEthical07/authgate/provider"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/userstore"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/MrEthical07/authgate"

// Builder assembles an [Engine]. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	users  userstore.Store

	providers []provider.Client

	logger         *zap.Logger
	auditSink      AuditSink
	tracerProvider trace.TracerProvider
	now            func() time.Time

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the session and rate limit store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the relational user store. Required.
func (b *Builder) WithUserStore(users userstore.Store) *Builder {
	b.users = users
	return b
}

// WithProvider registers a sign-in provider under its Name. At least one
// is required.
func (b *Builder) WithProvider(p provider.Client) *Builder {
	b.providers = append(b.providers, p)
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithClock replaces time.Now for session timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine. A Builder can be
// used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- PROVIDERS --------
	if len(b.providers) == 0 {
		return nil, errors.New("at least one provider required")
	}
	providers := make(map[provider.Name]provider.Client, len(b.providers))
	for _, p := range b.providers {
		if p == nil {
			return nil, errors.New("nil provider")
		}
		if _, dup := providers[p.Name()]; dup {
			return nil, fmt.Errorf("provider %q registered twice", p.Name())
		}
		providers[p.Name()] = p
	}

	// -------- ORIGINS --------
	registry, err := origin.NewRegistry(cfg.Origins...)
	if err != nil {
		return nil, err
	}

	// -------- SESSIONS --------
	var sessionOpts []session.Option
	if b.now != nil {
		sessionOpts = append(sessionOpts, session.WithClock(b.now))
	}
	store := session.NewStore(b.redis, cfg.Session.KeyPrefix, cfg.Session.IndexPrefix)
	sessions := session.NewManager(store, cfg.Session.TTL, sessionOpts...)

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		origins:   registry,
		sessions:  sessions,
		users:     b.users,
		providers: providers,
		limiter: rate.New(b.redis, rate.Config{
			Limit:  cfg.RateLimit.FlowLimit,
			Window: cfg.RateLimit.FlowWindow,
		}),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger.Named("authgate"),
		tracer:  tp.Tracer(tracerName),
	}
	engine.flows = flows.Deps{
		OAuthLogin: flows.OAuthLoginDeps{
			Users:    b.users,
			Sessions: sessions,
		},
	}

	b.built = true

	return engine, nil
}
