// Package app wires the service together from its configuration and runs
// the API and metrics listeners.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/internal/config"
	"github.com/MrEthical07/authgate/internal/security"
	"github.com/MrEthical07/authgate/internal/server"
	"github.com/MrEthical07/authgate/internal/telemetry"
	"github.com/MrEthical07/authgate/provider"
	"github.com/MrEthical07/authgate/userstore"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName       = "authgate"
	dialTimeout       = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// App is a fully wired service.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	engine    *authgate.Engine
	telemetry *telemetry.Providers
	api       http.Handler

	closers []func() error
}

// New dials the backing stores, runs migrations and builds the engine.
// Call Close when done, even after Run returns.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	tel, err := telemetry.NewProviders(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return nil, err
	}
	tel.SetGlobal()
	a.telemetry = tel

	rdb, err := dialRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)

	db, dialect, err := openUserDB(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := userstore.Migrate(db, dialect, userstore.Up); err != nil {
		return nil, fmt.Errorf("migrate user store: %w", err)
	}

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b := authgate.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithUserStore(userstore.NewSQLStore(db, dialect)).
		WithLogger(logger).
		WithAuditSink(auditSink(cfg, logger)).
		WithTracerProvider(tel.TracerProvider)
	for _, p := range providers {
		b.WithProvider(p)
	}
	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = engine
	a.closers = append(a.closers, func() error {
		engine.Close()
		return nil
	})

	if err := tel.ObserveEngine(engine); err != nil {
		return nil, err
	}

	a.api = server.New(engine,
		server.WithLogger(logger),
		server.WithTrustProxy(cfg.TrustProxy),
	)

	report := engine.SecurityReport()
	for _, w := range report.Warnings {
		fields := []zap.Field{zap.String("code", w.Code), zap.Stringer("severity", w.Severity)}
		if cfg.IsProduction() && w.Severity == security.SeverityHigh {
			logger.Warn(w.Message, fields...)
			continue
		}
		logger.Debug(w.Message, fields...)
	}
	logger.Info("authgate ready",
		zap.Strings("providers", report.Providers),
		zap.Strings("pkce", report.PKCEProviders),
		zap.Strings("origins", report.Origins),
		zap.Duration("session_ttl", report.SessionTTL),
		zap.Bool("secure_cookies", report.SecureCookies),
		zap.String("env", cfg.Env),
	)
	return a, nil
}

// Engine returns the wired engine.
func (a *App) Engine() *authgate.Engine {
	return a.engine
}

// Handler returns the public API router.
func (a *App) Handler() http.Handler {
	return a.api
}

// Run serves the API and, when configured, the metrics listener until ctx
// is cancelled, then shuts both down within ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	servers := []*http.Server{{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.api,
		ReadHeaderTimeout: readHeaderTimeout,
	}}
	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.telemetry.MetricsHandler())
		servers = append(servers, &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		})
	}

	listeners := make([]net.Listener, 0, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		a.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		listeners = append(listeners, ln)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		ln := listeners[i]
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	a.logger.Info("servers stopped")
	return err
}

// Close releases everything New acquired, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.telemetry.Shutdown(ctx))
		a.telemetry = nil
	}
	return errors.Join(errs...)
}

func dialRedis(ctx context.Context, rawURL string, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, rdb.Ping(ctx).Err()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(dialTimeout),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warn("redis not ready, retrying", zap.Duration("in", d), zap.Error(err))
		}),
	)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

type userDB struct {
	db      *sql.DB
	dialect userstore.Dialect
}

func openUserDB(ctx context.Context, dsn string, logger *zap.Logger) (*sql.DB, userstore.Dialect, error) {
	res, err := backoff.Retry(ctx, func() (userDB, error) {
		db, dialect, err := userstore.Open(ctx, dsn)
		if err != nil {
			if !errors.Is(err, userstore.ErrUnavailable) {
				return userDB{}, backoff.Permanent(err)
			}
			return userDB{}, err
		}
		return userDB{db: db, dialect: dialect}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(dialTimeout),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warn("database not ready, retrying", zap.Duration("in", d), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, "", fmt.Errorf("connect database: %w", err)
	}
	return res.db, res.dialect, nil
}

func buildProviders(ctx context.Context, cfg *config.Config) ([]provider.Client, error) {
	var out []provider.Client

	if cfg.GoogleEnabled() {
		g, err := provider.DiscoverGoogle(ctx, provider.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  provider.CallbackURL(cfg.BackendURL, provider.Google),
			Timeout:      cfg.ProviderTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("google provider: %w", err)
		}
		out = append(out, g)
	}

	if cfg.GitHubEnabled() {
		gh, err := provider.NewGitHub(provider.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  provider.CallbackURL(cfg.BackendURL, provider.GitHub),
			Timeout:      cfg.ProviderTimeout,
		}, provider.DefaultGitHubAPI)
		if err != nil {
			return nil, fmt.Errorf("github provider: %w", err)
		}
		out = append(out, gh)
	}

	return out, nil
}

func auditSink(cfg *config.Config, logger *zap.Logger) authgate.AuditSink {
	if cfg.AuditSink == config.AuditSinkStdout {
		return authgate.NewJSONLinesSink(os.Stdout)
	}
	return authgate.NewZapSink(logger)
}
