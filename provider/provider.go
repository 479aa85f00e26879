// Package provider implements the OAuth2 / OpenID Connect clients used to
// sign users in. Each supported identity provider is one implementation of
// [Client]; the flow controller never branches on provider names.
package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Name identifies a provider in routes, cookies and account rows.
type Name string

const (
	Google Name = "google"
	GitHub Name = "github"
)

// DefaultTimeout bounds every outbound provider call.
const DefaultTimeout = 10 * time.Second

var (
	// ErrExchangeFailed wraps any failure turning an authorization code into
	// tokens, including timeouts.
	ErrExchangeFailed = errors.New("authorization code exchange failed")
	// ErrIdentityUnavailable is returned when the provider's identity data
	// cannot be fetched or trusted.
	ErrIdentityUnavailable = errors.New("provider identity unavailable")
	// ErrUnverifiedEmail is returned by Identity.VerifiedEmail when the
	// provider did not vouch for any address.
	ErrUnverifiedEmail = errors.New("provider email not verified")
)

// AuthRequest is everything the browser handshake needs to remember between
// the redirect to the provider and the callback.
type AuthRequest struct {
	URL          string
	State        string
	CodeVerifier string
}

// Identity is the provider-side view of the user.
type Identity struct {
	Provider      Name
	ProviderID    string
	Name          string
	AvatarURL     string
	Email         string
	EmailVerified bool
}

// VerifiedEmail returns the email only when the provider verified it.
func (i *Identity) VerifiedEmail() (string, error) {
	if i == nil || !i.EmailVerified || i.Email == "" {
		return "", ErrUnverifiedEmail
	}
	return i.Email, nil
}

// Client is one OAuth identity provider.
type Client interface {
	Name() Name
	// UsesPKCE reports whether AuthorizationRequest returns a code verifier
	// that must be replayed to ExchangeCode.
	UsesPKCE() bool
	// AuthorizationRequest builds the provider URL with a fresh state and,
	// for PKCE providers, a fresh verifier. Nil scopes selects the defaults.
	AuthorizationRequest(scopes ...string) (AuthRequest, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)
	FetchIdentity(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

// Config carries the OAuth application registration of one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides the provider's well-known endpoints.
	Endpoint oauth2.Endpoint
	// HTTPClient is used for token and API calls. A client with Timeout set
	// is created when nil.
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (c Config) validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("provider client id and secret are required")
	}
	if c.RedirectURL == "" {
		return errors.New("provider redirect url is required")
	}
	return nil
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.timeout()}
}

// CallbackURL returns the redirect URI registered with a provider:
// {backendURL}/auth/{name}/callback.
func CallbackURL(backendURL string, name Name) string {
	return strings.TrimRight(backendURL, "/") + "/auth/" + string(name) + "/callback"
}

// GenerateState returns 32 random bytes as unpadded base64url.
func GenerateState() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
