package session

import (
	"time"

	"github.com/MrEthical07/authgate/identity"
)

// Session is one server-side login. Profile fields are a snapshot of the user
// taken when the session was created; timestamps are Unix milliseconds.
type Session struct {
	ID        string
	UserID    string
	Email     string
	Fullname  string
	AvatarURL *string
	Username  *string
	Roles     []string

	CreatedAt int64
	ExpiresAt int64
}

// User rebuilds the identity snapshot carried by the session.
func (s *Session) User() *identity.User {
	if s == nil {
		return nil
	}
	u := &identity.User{
		ID:        s.UserID,
		Fullname:  s.Fullname,
		Email:     s.Email,
		Username:  s.Username,
		AvatarURL: s.AvatarURL,
		Roles:     s.Roles,
	}
	return u.Clone()
}

// ExpiresTime returns ExpiresAt as a time.Time.
func (s *Session) ExpiresTime() time.Time {
	return time.UnixMilli(s.ExpiresAt)
}

// CreatedTime returns CreatedAt as a time.Time.
func (s *Session) CreatedTime() time.Time {
	return time.UnixMilli(s.CreatedAt)
}

func newSession(id string, user *identity.User, now time.Time, ttl time.Duration) *Session {
	u := user.Clone()
	return &Session{
		ID:        id,
		UserID:    u.ID,
		Email:     u.Email,
		Fullname:  u.Fullname,
		AvatarURL: u.AvatarURL,
		Username:  u.Username,
		Roles:     u.Roles,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
}
