// Package origin maps the browser origins allowed to drive authentication to
// the pages each of them hosts, and resolves the origin of an HTTP request.
package origin

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Default page paths used when an Entry leaves them empty.
const (
	DefaultErrorPage  = "/auth/error"
	DefaultSignInPage = "/login"
	DefaultSignUpPage = "/signup"
)

// ErrNoOrigin is returned when a request carries neither a usable Origin
// header nor a Referer URL.
var ErrNoOrigin = errors.New("request origin unavailable")

// Entry describes one allowed origin.
type Entry struct {
	Origin     string
	ErrorPage  string
	SignInPage string
	SignUpPage string
}

// Registry is an immutable set of allowed origins built at startup.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry normalizes and indexes entries. Every Origin must be an
// absolute http(s) URL; duplicates are rejected.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		normalized, err := Normalize(e.Origin)
		if err != nil {
			return nil, fmt.Errorf("origin %q: %w", e.Origin, err)
		}
		if _, dup := r.entries[normalized]; dup {
			return nil, fmt.Errorf("origin %q registered twice", normalized)
		}
		e.Origin = normalized
		if e.ErrorPage == "" {
			e.ErrorPage = DefaultErrorPage
		}
		if e.SignInPage == "" {
			e.SignInPage = DefaultSignInPage
		}
		if e.SignUpPage == "" {
			e.SignUpPage = DefaultSignUpPage
		}
		r.entries[normalized] = e
	}
	return r, nil
}

// Validate reports whether origin is registered. The comparison is exact on
// the normalized scheme://host[:port] form.
func (r *Registry) Validate(origin string) bool {
	if r == nil || origin == "" {
		return false
	}
	_, ok := r.entries[origin]
	return ok
}

// Data returns the pages of a registered origin. Callers must Validate
// first; an unknown origin is a programming error and panics.
func (r *Registry) Data(origin string) Entry {
	e, ok := r.entries[origin]
	if !ok {
		panic(fmt.Sprintf("origin: Data called with unregistered origin %q", origin))
	}
	return e
}

// Origins lists the registered origins.
func (r *Registry) Origins() []string {
	out := make([]string, 0, len(r.entries))
	for o := range r.entries {
		out = append(out, o)
	}
	return out
}

// ErrorURL builds the absolute URL of origin's error page carrying key in
// the "error" query parameter.
func (r *Registry) ErrorURL(origin, key string) string {
	e := r.Data(origin)
	q := url.Values{}
	q.Set("error", key)
	return joinPath(origin, e.ErrorPage) + "?" + q.Encode()
}

// Normalize reduces raw to its scheme://host[:port] origin.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return FromURL(u)
}

// FromURL returns the origin of an absolute http(s) URL.
func FromURL(u *url.URL) (string, error) {
	if u == nil || u.Host == "" {
		return "", errors.New("not an absolute URL")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return scheme + "://" + strings.ToLower(u.Host), nil
}

// ResolveRequestOrigin returns the Origin header when present, otherwise
// the origin of the Referer header. An opaque "null" Origin is rejected
// without consulting Referer.
func ResolveRequestOrigin(r *http.Request) (string, error) {
	if o := r.Header.Get("Origin"); o == "null" {
		return "", ErrNoOrigin
	} else if o != "" {
		normalized, err := Normalize(o)
		if err != nil {
			return "", ErrNoOrigin
		}
		return normalized, nil
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		normalized, err := Normalize(ref)
		if err != nil {
			return "", ErrNoOrigin
		}
		return normalized, nil
	}
	return "", ErrNoOrigin
}

func joinPath(origin, page string) string {
	return strings.TrimRight(origin, "/") + "/" + strings.TrimLeft(page, "/")
}
