package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authgate/identity"
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

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newManagerTest(t *testing.T, ttl time.Duration) (*Manager, *testClock, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := &testClock{now: time.Now().Truncate(time.Millisecond)}
	m := NewManager(NewStore(rdb, "", ""), ttl, WithClock(clock.Now))
	return m, clock, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func testUser(id string) *identity.User {
	avatar := "https://cdn.example/a.png"
	return &identity.User{
		ID:        id,
		Fullname:  "Ada Lovelace",
		Email:     id + "@example.com",
		AvatarURL: &avatar,
		Roles:     []string{},
	}
}

func mustCreate(t *testing.T, m *Manager, user *identity.User) (string, *Session) {
	t.Helper()
	token, err := m.GenerateToken()
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	sess, err := m.Create(context.Background(), token, user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return token, sess
}

func TestCreateValidateRoundTrip(t *testing.T) {
	m, clock, mr, done := newManagerTest(t, 30*24*time.Hour)
	defer done()
	ctx := context.Background()

	token, created := mustCreate(t, m, testUser("u1"))

	if created.ID != IDFromToken(token) {
		t.Fatalf("session id %q is not the token digest", created.ID)
	}
	if created.ExpiresAt != clock.Now().Add(m.TTL()).UnixMilli() {
		t.Fatalf("unexpected expiresAt %d", created.ExpiresAt)
	}

	got, extended, err := m.Validate(ctx, token, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if extended {
		t.Fatal("fresh session must not be extended")
	}
	if got.UserID != "u1" || got.Email != "u1@example.com" || got.Fullname != "Ada Lovelace" {
		t.Fatalf("unexpected session %+v", got)
	}
	if got.User().AvatarURL == nil || *got.User().AvatarURL != "https://cdn.example/a.png" {
		t.Fatalf("avatar not preserved: %+v", got.User())
	}

	for _, key := range mr.Keys() {
		if strings.Contains(key, token) {
			t.Fatalf("token leaked into key %q", key)
		}
		if mr.Exists(key) {
			if v, err := mr.Get(key); err == nil && strings.Contains(v, token) {
				t.Fatalf("token leaked into value of %q", key)
			}
		}
	}
	members, err := mr.Members(m.Store().IndexKey("u1"))
	if err != nil || len(members) != 1 || members[0] != created.ID {
		t.Fatalf("index not written: %v %v", members, err)
	}
}

func TestRecordExpiryPinnedToExpiresAt(t *testing.T) {
	ttl := 2 * time.Hour
	m, _, mr, done := newManagerTest(t, ttl)
	defer done()

	_, sess := mustCreate(t, m, testUser("u1"))

	got := mr.TTL(m.Store().Key(sess.ID))
	if got <= ttl-time.Minute || got > ttl+time.Minute {
		t.Fatalf("redis ttl %s does not track expiresAt", got)
	}
}

func TestValidateExpiredRemovesRecordAndIndex(t *testing.T) {
	ttl := time.Hour
	m, clock, mr, done := newManagerTest(t, ttl)
	defer done()
	ctx := context.Background()

	token, sess := mustCreate(t, m, testUser("u1"))

	clock.Set(sess.ExpiresTime())
	if _, _, err := m.Validate(ctx, token, true); err != nil {
		t.Fatalf("session must still be valid exactly at expiresAt: %v", err)
	}

	clock.Set(sess.ExpiresTime().Add(time.Millisecond))
	_, _, err := m.Validate(ctx, token, false)
	if !errors.Is(err, ErrSessionNotFound) || !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected expired not-found error, got %v", err)
	}
	if mr.Exists(m.Store().Key(sess.ID)) {
		t.Fatal("expired record must be deleted")
	}
	if mr.Exists(m.Store().IndexKey("u1")) {
		members, _ := mr.Members(m.Store().IndexKey("u1"))
		if len(members) != 0 {
			t.Fatalf("expired session still indexed: %v", members)
		}
	}

	if _, _, err := m.Validate(ctx, token, false); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found after cleanup, got %v", err)
	}
}

func TestSlidingExpiryBoundaries(t *testing.T) {
	ttl := 2 * time.Hour
	m, clock, _, done := newManagerTest(t, ttl)
	defer done()
	ctx := context.Background()

	token, sess := mustCreate(t, m, testUser("u1"))
	threshold := sess.ExpiresTime().Add(-ttl / 2)

	clock.Set(threshold.Add(-time.Millisecond))
	got, extended, err := m.Validate(ctx, token, false)
	if err != nil {
		t.Fatalf("validate before threshold: %v", err)
	}
	if extended || got.ExpiresAt != sess.ExpiresAt {
		t.Fatalf("must not extend before threshold: extended=%v expiresAt=%d", extended, got.ExpiresAt)
	}

	clock.Set(threshold)
	if _, extended, _ = m.Validate(ctx, token, false); extended {
		t.Fatal("must not extend exactly at threshold")
	}

	now := threshold.Add(time.Millisecond)
	clock.Set(now)
	got, extended, err = m.Validate(ctx, token, false)
	if err != nil {
		t.Fatalf("validate after threshold: %v", err)
	}
	if !extended {
		t.Fatal("expected extension after threshold")
	}
	want := now.Add(ttl).UnixMilli()
	if got.ExpiresAt != want {
		t.Fatalf("expiresAt = %d, want %d", got.ExpiresAt, want)
	}

	stored, err := m.Store().Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.ExpiresAt != want {
		t.Fatalf("extension not persisted: %d", stored.ExpiresAt)
	}
}

func TestValidateWithoutAutoExtend(t *testing.T) {
	ttl := 2 * time.Hour
	m, clock, _, done := newManagerTest(t, ttl)
	defer done()

	token, sess := mustCreate(t, m, testUser("u1"))
	clock.Set(sess.ExpiresTime().Add(-time.Minute))

	got, extended, err := m.Validate(context.Background(), token, true)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if extended || got.ExpiresAt != sess.ExpiresAt {
		t.Fatal("auto-extend disabled must leave expiry untouched")
	}
}

func TestValidateUnknownToken(t *testing.T) {
	m, _, _, done := newManagerTest(t, time.Hour)
	defer done()

	if _, _, err := m.Validate(context.Background(), "nope", false); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := m.Validate(context.Background(), "", false); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found for empty token, got %v", err)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	m, _, _, done := newManagerTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	token, sess := mustCreate(t, m, testUser("u1"))

	if err := m.Invalidate(ctx, sess.ID, sess.UserID); err != nil {
		t.Fatalf("first invalidate: %v", err)
	}
	if err := m.Invalidate(ctx, sess.ID, sess.UserID); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
	if _, _, err := m.Validate(ctx, token, false); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInvalidateAllRevokesEverySession(t *testing.T) {
	m, _, mr, done := newManagerTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	user := testUser("u1")
	tokens := make([]string, 0, 3)
	var lastID string
	for i := 0; i < 3; i++ {
		token, sess := mustCreate(t, m, user)
		tokens = append(tokens, token)
		lastID = sess.ID
	}
	other, _ := mustCreate(t, m, testUser("u2"))

	// a record that already vanished must not break the bulk delete
	mr.Del(m.Store().Key(lastID))

	n, err := m.InvalidateAll(ctx, "u1")
	if err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 indexed sessions, got %d", n)
	}

	for _, token := range tokens {
		if _, _, err := m.Validate(ctx, token, false); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("session survived revoke-all: %v", err)
		}
	}
	if mr.Exists(m.Store().IndexKey("u1")) {
		t.Fatal("index set must be deleted")
	}
	if _, _, err := m.Validate(ctx, other, false); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}
}

func TestInvalidateAllWithoutSessions(t *testing.T) {
	m, _, _, done := newManagerTest(t, time.Hour)
	defer done()

	n, err := m.InvalidateAll(context.Background(), "ghost")
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got n=%d err=%v", n, err)
	}
}

func TestSessionsListsLiveAndPrunesDead(t *testing.T) {
	m, clock, mr, done := newManagerTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	_, first := mustCreate(t, m, testUser("u1"))
	clock.Set(clock.Now().Add(time.Second))
	_, second := mustCreate(t, m, testUser("u1"))
	_, gone := mustCreate(t, m, testUser("u1"))
	mr.Del(m.Store().Key(gone.ID))

	list, err := m.Sessions(ctx, "u1")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("unexpected sessions: %+v", list)
	}

	members, _ := mr.Members(m.Store().IndexKey("u1"))
	for _, id := range members {
		if id == gone.ID {
			t.Fatal("dead index entry was not pruned")
		}
	}
}

func TestConcurrentValidateKeepsSessionUsable(t *testing.T) {
	ttl := 2 * time.Hour
	m, clock, _, done := newManagerTest(t, ttl)
	defer done()
	ctx := context.Background()

	token, sess := mustCreate(t, m, testUser("u1"))
	clock.Set(sess.ExpiresTime().Add(-time.Minute))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := m.Validate(ctx, token, false); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent validate failed: %v", err)
	}

	stored, err := m.Store().Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.ExpiresAt <= sess.ExpiresAt {
		t.Fatalf("expiry did not move forward: %d <= %d", stored.ExpiresAt, sess.ExpiresAt)
	}
}

// revokeAfterGet runs revoke once, right after the first GET the client
// sends, to interleave a revocation between Validate's read and write.
type revokeAfterGet struct {
	once   sync.Once
	revoke func()
}

func (h *revokeAfterGet) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *revokeAfterGet) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if cmd.Name() == "get" {
			h.once.Do(h.revoke)
		}
		return err
	}
}

func (h *revokeAfterGet) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestValidateRacingRevokeAllDoesNotResurrect(t *testing.T) {
	ttl := time.Hour
	m, clock, mr, done := newManagerTest(t, ttl)
	defer done()
	ctx := context.Background()

	token, sess := mustCreate(t, m, testUser("u1"))
	clock.Set(sess.CreatedTime().Add(40 * time.Minute))

	var revoked int
	var revokeErr error
	hook := &revokeAfterGet{revoke: func() {
		revoked, revokeErr = m.InvalidateAll(ctx, "u1")
	}}
	racing := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer racing.Close()
	racing.AddHook(hook)
	racer := NewManager(NewStore(racing, "", ""), ttl, WithClock(clock.Now))

	_, extended, err := racer.Validate(ctx, token, false)
	if revokeErr != nil || revoked != 1 {
		t.Fatalf("revoke-all: n=%d err=%v", revoked, revokeErr)
	}
	if !errors.Is(err, ErrSessionNotFound) || extended {
		t.Fatalf("racing validate: extended=%v err=%v", extended, err)
	}
	if mr.Exists(m.Store().Key(sess.ID)) {
		t.Fatal("revoked record was recreated")
	}
	if _, _, err := m.Validate(ctx, token, false); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("token still valid after revoke-all: %v", err)
	}
}

func TestStoreFailureIsReported(t *testing.T) {
	m, _, mr, done := newManagerTest(t, time.Hour)
	defer done()

	token, _ := mustCreate(t, m, testUser("u1"))
	mr.Close()

	if _, _, err := m.Validate(context.Background(), token, false); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestCreateRejectsMissingInputs(t *testing.T) {
	m, _, _, done := newManagerTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	if _, err := m.Create(ctx, "", testUser("u1")); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := m.Create(ctx, "tok", &identity.User{}); err == nil {
		t.Fatal("expected error for user without id")
	}
}
