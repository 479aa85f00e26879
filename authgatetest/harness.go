// Package authgatetest builds a fully wired authgate.Engine for tests of the
// HTTP packages: miniredis for sessions, a migrated SQLite user store and
// scripted providers.
package authgatetest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/origin"
	"github.com/MrEthical07/authgate/provider"
	"github.com/MrEthical07/authgate/provider/providertest"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/userstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

// AppOrigin and AdminOrigin are registered in every harness.
const (
	AppOrigin   = "https://app.example"
	AdminOrigin = "https://admin.example"
)

// Clock is a settable time source. It starts at the wall clock because
// miniredis evaluates PEXPIREAT against real time.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Harness is a wired Engine plus handles on its backends.
type Harness struct {
	Engine *authgate.Engine
	Redis  *miniredis.Miniredis
	Users  *userstore.SQLStore
	Google *providertest.Fake
	GitHub *providertest.Fake
	Audit  *authgate.ChannelSink
	Clock  *Clock
}

// Config returns a valid configuration with a one hour session TTL and
// both test origins registered.
func Config() authgate.Config {
	cfg := authgate.DefaultConfig()
	cfg.Session.TTL = time.Hour
	cfg.Origins = []origin.Entry{
		{Origin: AppOrigin},
		{Origin: AdminOrigin, ErrorPage: "/error", SignInPage: "/sign-in"},
	}
	cfg.OAuth.BackendURL = "https://api.example"
	cfg.Audit.BufferSize = 1024
	cfg.Audit.DropIfFull = true
	return cfg
}

// New builds a Harness. mutate may adjust [Config] before the Engine is
// built. Everything is released through t.Cleanup.
func New(t testing.TB, mutate func(*authgate.Config)) *Harness {
	t.Helper()

	cfg := Config()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, dialect, err := userstore.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("open user db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := userstore.Migrate(db, dialect, userstore.Up); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := &Harness{
		Redis:  mr,
		Users:  userstore.NewSQLStore(db, dialect),
		Google: providertest.New(provider.Google),
		GitHub: providertest.New(provider.GitHub),
		Audit:  authgate.NewChannelSink(1024),
		Clock:  &Clock{now: time.Now()},
	}

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(h.Users).
		WithProvider(h.Google).
		WithProvider(h.GitHub).
		WithAuditSink(h.Audit).
		WithLogger(zaptest.NewLogger(t)).
		WithClock(h.Clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.Engine = engine
	return h
}

// IssueSession creates a session for user directly through the session
// manager and returns its token.
func (h *Harness) IssueSession(t testing.TB, user *identity.User) (string, *session.Session) {
	t.Helper()

	token, err := session.GenerateToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	sess, err := h.Engine.Sessions().Create(context.Background(), token, user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return token, sess
}

// User returns a minimal user with roles.
func User(id string, roles ...string) *identity.User {
	return &identity.User{
		ID:       id,
		Fullname: "Test User",
		Email:    id + "@example.com",
		Roles:    roles,
	}
}
