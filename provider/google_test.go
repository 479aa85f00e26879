package provider

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testClientID = "client-id"

type googleFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	provider *GoogleProvider
	claims   jwt.MapClaims
	gotForm  url.Values
}

func newGoogleFixture(t *testing.T) *googleFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &googleFixture{
		key: key,
		claims: jwt.MapClaims{
			"iss":            GoogleIssuer,
			"aud":            testClientID,
			"sub":            "google-sub-1",
			"email":          "ada@example.com",
			"email_verified": true,
			"name":           "Ada Lovelace",
			"picture":        "https://lh3.example/ada.png",
		},
	}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		f.gotForm = r.PostForm
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     f.sign(t),
		})
	}))
	t.Cleanup(f.server.Close)

	verifier := oidc.NewVerifier(
		GoogleIssuer,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
		&oidc.Config{ClientID: testClientID},
	)
	p, err := NewGoogle(Config{
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "https://api.example/auth/google/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.server.URL + "/auth",
			TokenURL:  f.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Timeout: 2 * time.Second,
	}, verifier)
	require.NoError(t, err)
	f.provider = p
	return f
}

func (f *googleFixture) sign(t *testing.T) string {
	t.Helper()
	claims := jwt.MapClaims{}
	for k, v := range f.claims {
		claims[k] = v
	}
	now := time.Now()
	claims["iat"] = now.Unix()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = now.Add(time.Hour).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func TestGoogleAuthorizationRequestUsesPKCE(t *testing.T) {
	f := newGoogleFixture(t)

	req, err := f.provider.AuthorizationRequest()
	require.NoError(t, err)
	require.NotEmpty(t, req.State)
	require.NotEmpty(t, req.CodeVerifier)
	require.True(t, f.provider.UsesPKCE())

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, req.State, q.Get("state"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, oauth2.S256ChallengeFromVerifier(req.CodeVerifier), q.Get("code_challenge"))
	require.Equal(t, "openid profile email", q.Get("scope"))
	require.Equal(t, testClientID, q.Get("client_id"))

	again, err := f.provider.AuthorizationRequest()
	require.NoError(t, err)
	require.NotEqual(t, req.State, again.State)
	require.NotEqual(t, req.CodeVerifier, again.CodeVerifier)
}

func TestGoogleExchangeAndIdentity(t *testing.T) {
	f := newGoogleFixture(t)
	ctx := context.Background()

	tok, err := f.provider.ExchangeCode(ctx, "good-code", "verifier-123")
	require.NoError(t, err)
	require.Equal(t, "verifier-123", f.gotForm.Get("code_verifier"))

	id, err := f.provider.FetchIdentity(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, Google, id.Provider)
	require.Equal(t, "google-sub-1", id.ProviderID)
	require.Equal(t, "Ada Lovelace", id.Name)
	require.Equal(t, "https://lh3.example/ada.png", id.AvatarURL)

	email, err := id.VerifiedEmail()
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", email)
}

func TestGoogleExchangeFailureIsRestartable(t *testing.T) {
	f := newGoogleFixture(t)

	_, err := f.provider.ExchangeCode(context.Background(), "bad-code", "v")
	require.True(t, errors.Is(err, ErrExchangeFailed), "got %v", err)

	_, err = f.provider.ExchangeCode(context.Background(), "good-code", "")
	require.True(t, errors.Is(err, ErrExchangeFailed), "missing verifier must fail, got %v", err)
}

func TestGoogleUnverifiedEmail(t *testing.T) {
	f := newGoogleFixture(t)
	f.claims["email_verified"] = false

	tok, err := f.provider.ExchangeCode(context.Background(), "good-code", "v")
	require.NoError(t, err)
	id, err := f.provider.FetchIdentity(context.Background(), tok)
	require.NoError(t, err)

	_, err = id.VerifiedEmail()
	require.ErrorIs(t, err, ErrUnverifiedEmail)
}

func TestGoogleRejectsForeignAudience(t *testing.T) {
	f := newGoogleFixture(t)
	f.claims["aud"] = "someone-else"

	tok, err := f.provider.ExchangeCode(context.Background(), "good-code", "v")
	require.NoError(t, err)
	_, err = f.provider.FetchIdentity(context.Background(), tok)
	require.ErrorIs(t, err, ErrIdentityUnavailable)
}

func TestGoogleRejectsExpiredIDToken(t *testing.T) {
	f := newGoogleFixture(t)
	f.claims["exp"] = time.Now().Add(-time.Hour).Unix()

	tok, err := f.provider.ExchangeCode(context.Background(), "good-code", "v")
	require.NoError(t, err)
	_, err = f.provider.FetchIdentity(context.Background(), tok)
	require.ErrorIs(t, err, ErrIdentityUnavailable)
}

func TestGoogleMissingIDToken(t *testing.T) {
	f := newGoogleFixture(t)

	_, err := f.provider.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: "x"})
	require.ErrorIs(t, err, ErrIdentityUnavailable)
}

func TestNewGoogleValidatesConfig(t *testing.T) {
	_, err := NewGoogle(Config{ClientID: "id"}, nil)
	require.Error(t, err)
}

func TestCallbackURL(t *testing.T) {
	require.Equal(t, "https://api.example/auth/github/callback", CallbackURL("https://api.example/", GitHub))
}
