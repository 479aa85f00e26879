// Package identity holds the user shape shared by the session, user store,
// and HTTP layers.
package identity

// User is the authenticated principal exposed to handlers and copied into
// every session record at creation time.
type User struct {
	ID        string   `json:"id"`
	Fullname  string   `json:"fullname"`
	Email     string   `json:"email"`
	Username  *string  `json:"username"`
	AvatarURL *string  `json:"avatarUrl"`
	Roles     []string `json:"roles"`
}

// HasAnyRole reports whether u holds at least one of roles. An empty roles
// list always matches.
func (u *User) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	if u == nil {
		return false
	}
	for _, want := range roles {
		for _, have := range u.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand out users without sharing
// the role slice or pointer fields.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Username != nil {
		v := *u.Username
		out.Username = &v
	}
	if u.AvatarURL != nil {
		v := *u.AvatarURL
		out.AvatarURL = &v
	}
	if u.Roles != nil {
		out.Roles = append([]string(nil), u.Roles...)
	}
	return &out
}
