package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// GoogleIssuer is Google's OpenID Connect issuer.
const GoogleIssuer = "https://accounts.google.com"

var googleDefaultScopes = []string{oidc.ScopeOpenID, "profile", "email"}

// GoogleProvider signs users in with Google using the authorization code
// flow with PKCE. Identity comes from the verified ID token.
type GoogleProvider struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
	http     *http.Client
	timeout  time.Duration
}

var _ Client = (*GoogleProvider)(nil)

// NewGoogle builds a Google client around an ID token verifier. Use
// [DiscoverGoogle] to obtain both from Google's discovery document.
func NewGoogle(cfg Config, verifier *oidc.IDTokenVerifier) (*GoogleProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	if verifier == nil {
		return nil, errors.New("google: id token verifier is required")
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = endpoints.Google
	}
	return &GoogleProvider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       googleDefaultScopes,
		},
		verifier: verifier,
		http:     cfg.httpClient(),
		timeout:  cfg.timeout(),
	}, nil
}

// DiscoverGoogle fetches Google's OIDC discovery document and returns a
// client whose endpoints and signing keys come from it.
func DiscoverGoogle(ctx context.Context, cfg Config) (*GoogleProvider, error) {
	ctx, cancel := context.WithTimeout(oidc.ClientContext(ctx, cfg.httpClient()), cfg.timeout())
	defer cancel()

	discovery, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("google discovery: %w", err)
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = discovery.Endpoint()
	}
	return NewGoogle(cfg, discovery.Verifier(&oidc.Config{ClientID: cfg.ClientID}))
}

func (g *GoogleProvider) Name() Name { return Google }

func (g *GoogleProvider) UsesPKCE() bool { return true }

func (g *GoogleProvider) AuthorizationRequest(scopes ...string) (AuthRequest, error) {
	state, err := GenerateState()
	if err != nil {
		return AuthRequest{}, err
	}
	verifier := oauth2.GenerateVerifier()

	cfg := g.oauth
	if len(scopes) > 0 {
		cfg.Scopes = scopes
	}
	return AuthRequest{
		URL:          cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		State:        state,
		CodeVerifier: verifier,
	}, nil
}

func (g *GoogleProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	if code == "" || codeVerifier == "" {
		return nil, fmt.Errorf("%w: code and verifier are required", ErrExchangeFailed)
	}
	ctx, cancel := context.WithTimeout(withHTTPClient(ctx, g.http), g.timeout)
	defer cancel()

	tok, err := g.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return tok, nil
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// FetchIdentity verifies the ID token returned with tok (issuer, audience,
// expiry and signature) and reads the profile claims from it.
func (g *GoogleProvider) FetchIdentity(ctx context.Context, tok *oauth2.Token) (*Identity, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: missing token", ErrIdentityUnavailable)
	}
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, fmt.Errorf("%w: token response has no id_token", ErrIdentityUnavailable)
	}

	ctx, cancel := context.WithTimeout(withHTTPClient(ctx, g.http), g.timeout)
	defer cancel()

	idToken, err := g.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: id_token has no subject", ErrIdentityUnavailable)
	}

	return &Identity{
		Provider:      Google,
		ProviderID:    claims.Subject,
		Name:          claims.Name,
		AvatarURL:     claims.Picture,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}
