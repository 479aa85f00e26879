package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/authgate/identity"
)

// Manager owns the session lifecycle on top of a [Store].
//
// Validation is read-then-write across two round trips. Two requests racing
// on the same session may both extend it; the later write wins and the
// expiry only ever moves forward in practice.
type Manager struct {
	store *Store
	ttl   time.Duration
	now   func() time.Time
}

// Option customizes a [Manager].
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests that pin expiry boundaries.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds a Manager issuing sessions that live for ttl and slide
// forward once less than half of ttl remains.
func NewManager(store *Store, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Store exposes the underlying adapter.
func (m *Manager) Store() *Store {
	return m.store
}

// GenerateToken returns a new random bearer token. See [GenerateToken].
func (m *Manager) GenerateToken() (string, error) {
	return GenerateToken()
}

// Create persists a session for user under the digest of token.
func (m *Manager) Create(ctx context.Context, token string, user *identity.User) (*Session, error) {
	if token == "" {
		return nil, errors.New("empty session token")
	}
	if user == nil || user.ID == "" {
		return nil, errors.New("session user is required")
	}

	sess := newSession(IDFromToken(token), user, m.now(), m.ttl)
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate resolves token to a live session.
//
// It returns [ErrSessionNotFound] (or [ErrSessionExpired], which matches it)
// when the token is unknown or past expiry; expired records are removed
// together with their index entry. Unless disableAutoExtend is set, a
// session with less than half its lifetime left is pushed to now+ttl and
// extended is true.
func (m *Manager) Validate(ctx context.Context, token string, disableAutoExtend bool) (sess *Session, extended bool, err error) {
	if token == "" {
		return nil, false, ErrSessionNotFound
	}

	sess, err = m.store.Get(ctx, IDFromToken(token))
	if err != nil {
		return nil, false, err
	}

	now := m.now().UnixMilli()
	if now > sess.ExpiresAt {
		if err := m.store.Delete(ctx, sess.ID, sess.UserID); err != nil {
			return nil, false, err
		}
		return nil, false, ErrSessionExpired
	}

	// A session revoked between the read and the extend stays revoked.
	ttl := m.ttl.Milliseconds()
	if !disableAutoExtend && now > sess.ExpiresAt-ttl/2 {
		sess.ExpiresAt = now + ttl
		if err := m.store.Put(ctx, sess); err != nil {
			return nil, false, err
		}
		extended = true
	}

	return sess, extended, nil
}

// Invalidate deletes one session and its index entry. It is idempotent.
func (m *Manager) Invalidate(ctx context.Context, sessionID, userID string) error {
	return m.store.Delete(ctx, sessionID, userID)
}

// InvalidateAll deletes every session indexed for userID together with the
// index itself and reports how many index entries were found. Sessions
// created concurrently with the call may survive it.
func (m *Manager) InvalidateAll(ctx context.Context, userID string) (int, error) {
	ids, err := m.store.Members(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := m.store.DeleteAll(ctx, userID, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Sessions lists the live sessions of userID, oldest first, and prunes
// index entries whose records are gone. Expired records still present are
// not returned but are left for Redis to evict.
func (m *Manager) Sessions(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := m.store.Members(ctx, userID)
	if err != nil {
		return nil, err
	}

	live, dead, err := m.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(dead) > 0 {
		if err := m.store.Unindex(ctx, userID, dead...); err != nil {
			return nil, err
		}
	}

	now := m.now().UnixMilli()
	out := make([]*Session, 0, len(live))
	for _, sess := range live {
		if sess.UserID != userID || now > sess.ExpiresAt {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out, nil
}
