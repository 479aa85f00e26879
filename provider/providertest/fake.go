// Package providertest provides an in-memory provider.Client for tests.
package providertest

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/MrEthical07/authgate/provider"
	"golang.org/x/oauth2"
)

// Fake is a scripted provider. Codes map to identities; any other code
// fails the exchange.
type Fake struct {
	ProviderName provider.Name
	PKCE         bool
	AuthURL      string

	mu         sync.Mutex
	identities map[string]*provider.Identity
	fetchErr   error
	exchanges  []Exchange
}

// Exchange records one ExchangeCode call.
type Exchange struct {
	Code         string
	CodeVerifier string
}

var _ provider.Client = (*Fake)(nil)

// New returns a fake named name. PKCE follows the real provider of the
// same name.
func New(name provider.Name) *Fake {
	return &Fake{
		ProviderName: name,
		PKCE:         name == provider.Google,
		AuthURL:      "https://idp.example/authorize",
		identities:   map[string]*provider.Identity{},
	}
}

// Accept makes code exchange successfully and resolve to id.
func (f *Fake) Accept(code string, id provider.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id.Provider == "" {
		id.Provider = f.ProviderName
	}
	f.identities[code] = &id
}

// FailIdentity makes FetchIdentity return err.
func (f *Fake) FailIdentity(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// Exchanges returns the recorded ExchangeCode calls.
func (f *Fake) Exchanges() []Exchange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Exchange(nil), f.exchanges...)
}

func (f *Fake) Name() provider.Name { return f.ProviderName }

func (f *Fake) UsesPKCE() bool { return f.PKCE }

func (f *Fake) AuthorizationRequest(scopes ...string) (provider.AuthRequest, error) {
	state, err := provider.GenerateState()
	if err != nil {
		return provider.AuthRequest{}, err
	}
	q := url.Values{}
	q.Set("state", state)
	req := provider.AuthRequest{State: state}
	if f.PKCE {
		req.CodeVerifier = oauth2.GenerateVerifier()
		q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(req.CodeVerifier))
		q.Set("code_challenge_method", "S256")
	}
	req.URL = f.AuthURL + "?" + q.Encode()
	return req, nil
}

func (f *Fake) ExchangeCode(_ context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, Exchange{Code: code, CodeVerifier: codeVerifier})
	if _, ok := f.identities[code]; !ok {
		return nil, fmt.Errorf("%w: unknown code %q", provider.ErrExchangeFailed, code)
	}
	return &oauth2.Token{AccessToken: "at-" + code, TokenType: "Bearer"}, nil
}

func (f *Fake) FetchIdentity(_ context.Context, tok *oauth2.Token) (*provider.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if tok == nil || len(tok.AccessToken) < 3 {
		return nil, provider.ErrIdentityUnavailable
	}
	id, ok := f.identities[tok.AccessToken[3:]]
	if !ok {
		return nil, provider.ErrIdentityUnavailable
	}
	out := *id
	return &out, nil
}
