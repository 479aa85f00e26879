package authgate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/origin"
	"github.com/MrEthical07/authgate/provider"
	"github.com/MrEthical07/authgate/provider/providertest"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/userstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engineHarness struct {
	engine *Engine
	mr     *miniredis.Miniredis
	users  *userstore.SQLStore
	google *providertest.Fake
	github *providertest.Fake
	audit  *ChannelSink
	clock  *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.TTL = time.Hour
	cfg.Origins = []origin.Entry{{Origin: "https://app.example"}}
	cfg.OAuth.BackendURL = "https://api.example"
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestUserStore(t *testing.T) *userstore.SQLStore {
	t.Helper()

	db, dialect, err := userstore.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("open user db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := userstore.Migrate(db, dialect, userstore.Up); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return userstore.NewSQLStore(db, dialect)
}

// newTestEngine builds an Engine over miniredis, a SQLite user store and
// fake Google and GitHub providers. mutate may adjust the config first.
func newTestEngine(t *testing.T, mutate func(*Config)) *engineHarness {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	h := &engineHarness{
		mr:     mr,
		users:  newTestUserStore(t),
		google: providertest.New(provider.Google),
		github: providertest.New(provider.GitHub),
		audit:  NewChannelSink(64),
		// miniredis expires keys on wall-clock time
		clock: &testClock{now: time.Now()},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(h.users).
		WithProvider(h.google).
		WithProvider(h.github).
		WithAuditSink(h.audit).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *engineHarness) issueSession(t *testing.T, userID string) (string, *session.Session) {
	t.Helper()

	token, err := session.GenerateToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	sess, err := h.engine.Sessions().Create(context.Background(), token, &identity.User{
		ID:       userID,
		Fullname: "Test User",
		Email:    userID + "@example.com",
		Roles:    []string{},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return token, sess
}

// nextEvent waits for the next audit event of eventType, skipping others.
func (h *engineHarness) nextEvent(t *testing.T, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.audit.Events():
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for audit event %q", eventType)
		}
	}
}
