package oauthflow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/authgatetest"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/MrEthical07/authgate/oauthflow"
	"github.com/MrEthical07/authgate/provider"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type flowFixture struct {
	h      *authgatetest.Harness
	router chi.Router
}

func newFlowFixture(t *testing.T, mutate func(*authgate.Config)) *flowFixture {
	t.Helper()
	h := authgatetest.New(t, mutate)
	r := chi.NewRouter()
	r.Use(middleware.ClientIP)
	r.Route("/auth", oauthflow.New(h.Engine).Routes)
	return &flowFixture{h: h, router: r}
}

func (f *flowFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *flowFixture) init(t *testing.T, providerName, origin, query string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/"+providerName+"?"+query, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return f.do(req)
}

// callback replays the cookies set by init the way a browser would.
func (f *flowFixture) callback(providerName string, cookies []*http.Cookie, query url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/"+providerName+"/callback?"+query.Encode(), nil)
	for _, c := range cookies {
		if c.MaxAge >= 0 && c.Value != "" {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return f.do(req)
}

func cookieMap(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func stateFrom(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("state")
}

func TestInitSetsHandshakeCookiesAndRedirects(t *testing.T) {
	f := newFlowFixture(t, nil)

	rec := f.init(t, "google", authgatetest.AppOrigin, "method=login&redirectUrl=%2Fusers")
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "idp.example", loc.Host)
	require.Equal(t, "S256", loc.Query().Get("code_challenge_method"))

	cookies := cookieMap(rec)
	require.Len(t, cookies, 4)
	require.Equal(t, loc.Query().Get("state"), cookies["google_oauth_state"].Value)
	require.NotEmpty(t, cookies["google_code_verifier"].Value)
	require.Equal(t, "login", cookies["method"].Value)
	require.Equal(t, "https://app.example/users", cookies["redirectUrl"].Value)
	for name, c := range cookies {
		require.True(t, c.HttpOnly, name)
		require.Equal(t, http.SameSiteLaxMode, c.SameSite, name)
		require.Equal(t, "/", c.Path, name)
		require.Equal(t, 600, c.MaxAge, name)
		require.False(t, c.Secure, name)
	}
}

func TestInitGitHubHasNoVerifier(t *testing.T) {
	f := newFlowFixture(t, func(cfg *authgate.Config) { cfg.Cookies.Secure = true })

	rec := f.init(t, "github", authgatetest.AppOrigin, "method=register&redirectUrl=%2F")
	require.Equal(t, http.StatusFound, rec.Code)

	cookies := cookieMap(rec)
	require.Contains(t, cookies, "github_oauth_state")
	require.NotContains(t, cookies, "github_code_verifier")
	require.Equal(t, "register", cookies["method"].Value)
	require.True(t, cookies["redirectUrl"].Secure)
}

func TestInitRejections(t *testing.T) {
	f := newFlowFixture(t, nil)

	tests := []struct {
		name     string
		provider string
		origin   string
		referer  string
		query    string
		want     int
	}{
		{"unknown provider", "gitlab", authgatetest.AppOrigin, "", "method=login&redirectUrl=%2F", http.StatusNotFound},
		{"bad method", "google", authgatetest.AppOrigin, "", "method=signup&redirectUrl=%2F", http.StatusBadRequest},
		{"absolute redirect", "google", authgatetest.AppOrigin, "", "method=login&redirectUrl=https%3A%2F%2Fevil.example%2F", http.StatusBadRequest},
		{"protocol relative redirect", "google", authgatetest.AppOrigin, "", "method=login&redirectUrl=%2F%2Fevil.example", http.StatusBadRequest},
		{"no origin or referer", "google", "", "", "method=login&redirectUrl=%2F", http.StatusForbidden},
		{"unregistered origin", "google", "https://evil.example", "", "method=login&redirectUrl=%2F", http.StatusForbidden},
		{"unregistered referer", "google", "", "https://evil.example/page", "method=login&redirectUrl=%2F", http.StatusForbidden},
		{"opaque origin with registered referer", "google", "null", "https://admin.example/sign-in", "method=login&redirectUrl=%2F", http.StatusForbidden},
		{"registered referer", "google", "", "https://admin.example/sign-in?x=1", "method=login&redirectUrl=%2F", http.StatusFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/"+tt.provider+"?"+tt.query, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			rec := f.do(req)
			require.Equal(t, tt.want, rec.Code)
			if tt.want >= 400 {
				var body middleware.ErrorBody
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				require.Equal(t, tt.want, body.StatusCode)
				require.Empty(t, rec.Result().Cookies())
			}
		})
	}
}

func TestInitRateLimited(t *testing.T) {
	f := newFlowFixture(t, func(cfg *authgate.Config) {
		cfg.RateLimit.FlowLimit = 1
		cfg.RateLimit.FlowWindow = time.Minute
	})

	require.Equal(t, http.StatusFound, f.init(t, "google", authgatetest.AppOrigin, "method=login&redirectUrl=%2F").Code)
	rec := f.init(t, "google", authgatetest.AppOrigin, "method=login&redirectUrl=%2F")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestEndToEndSignIn(t *testing.T) {
	f := newFlowFixture(t, nil)
	f.h.Google.Accept("auth-code", provider.Identity{
		ProviderID:    "google-sub",
		Name:          "Ada Lovelace",
		Email:         "ada@example.com",
		EmailVerified: true,
	})

	initRec := f.init(t, "google", authgatetest.AppOrigin, "method=register&redirectUrl=%2Fusers")
	require.Equal(t, http.StatusFound, initRec.Code)
	initCookies := initRec.Result().Cookies()

	rec := f.callback("google", initCookies, url.Values{
		"code":  {"auth-code"},
		"state": {stateFrom(t, initRec)},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://app.example/users", rec.Header().Get("Location"))

	cookies := cookieMap(rec)
	sessionCookie := cookies[authgate.SessionCookieName]
	require.NotNil(t, sessionCookie)
	require.True(t, sessionCookie.HttpOnly)
	require.WithinDuration(t, f.h.Clock.Now().Add(time.Hour), sessionCookie.Expires, 2*time.Second)
	for _, name := range []string{"google_oauth_state", "google_code_verifier", "method", "redirectUrl"} {
		require.Contains(t, cookies, name)
		require.Less(t, cookies[name].MaxAge, 0, name)
	}

	exchanges := f.h.Google.Exchanges()
	require.Len(t, exchanges, 1)
	require.Equal(t, cookieMap(initRec)["google_code_verifier"].Value, exchanges[0].CodeVerifier)

	sess, _, err := f.h.Engine.ValidateSession(context.Background(), sessionCookie.Value, true)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", sess.Email)
	require.Equal(t, "Ada Lovelace", sess.Fullname)
}

func TestCallbackErrorBoundary(t *testing.T) {
	f := newFlowFixture(t, nil)
	f.h.GitHub.Accept("taken", provider.Identity{ProviderID: "gh-1", Email: "ada@example.com", EmailVerified: true})
	f.h.Google.Accept("same-email", provider.Identity{ProviderID: "g-1", Email: "ada@example.com", EmailVerified: true})
	f.h.Google.Accept("unverified", provider.Identity{ProviderID: "g-2", Email: "bob@example.com"})

	seed := f.init(t, "github", authgatetest.AppOrigin, "method=register&redirectUrl=%2F")
	require.Equal(t, http.StatusFound, f.callback("github", seed.Result().Cookies(), url.Values{
		"code": {"taken"}, "state": {stateFrom(t, seed)},
	}).Code)

	tests := []struct {
		name     string
		origin   string
		code     string
		badState bool
		want     string
	}{
		{"state mismatch", authgatetest.AppOrigin, "same-email", true, "https://app.example/auth/error?error=RESTART"},
		{"bad code", authgatetest.AppOrigin, "nope", false, "https://app.example/auth/error?error=RESTART"},
		{"unverified email", authgatetest.AppOrigin, "unverified", false, "https://app.example/auth/error?error=OAUTH_UNVERIFIED_EMAIL"},
		{"same email", authgatetest.AdminOrigin, "same-email", false, "https://admin.example/error?error=SAME_EMAIL_DIFFERENT_PROVIDER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initRec := f.init(t, "google", tt.origin, "method=login&redirectUrl=%2Fhome")
			state := stateFrom(t, initRec)
			if tt.badState {
				state = "forged"
			}
			rec := f.callback("google", initRec.Result().Cookies(), url.Values{"code": {tt.code}, "state": {state}})

			require.Equal(t, http.StatusFound, rec.Code)
			require.Equal(t, tt.want, rec.Header().Get("Location"))
			require.NotContains(t, cookieMap(rec), authgate.SessionCookieName)
		})
	}

	var users int
	require.NoError(t, f.h.Users.DB().QueryRow(`SELECT COUNT(*) FROM users`).Scan(&users))
	require.Equal(t, 1, users)
}

func TestCallbackForbiddenWithoutTrustedRedirect(t *testing.T) {
	f := newFlowFixture(t, nil)

	tests := []struct {
		name     string
		redirect string
	}{
		{"missing", ""},
		{"relative", "/users"},
		{"unregistered origin", "https://evil.example/users"},
		{"javascript", "javascript:alert(1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookies []*http.Cookie
			if tt.redirect != "" {
				cookies = append(cookies, &http.Cookie{Name: "redirectUrl", Value: tt.redirect})
			}
			cookies = append(cookies,
				&http.Cookie{Name: "github_oauth_state", Value: "s"},
				&http.Cookie{Name: "method", Value: "login"},
			)
			rec := f.callback("github", cookies, url.Values{"code": {"c"}, "state": {"s"}})
			require.Equal(t, http.StatusForbidden, rec.Code)
			require.Empty(t, rec.Header().Get("Location"))
		})
	}
}

func TestCallbackRestartsOnBrokenHandshake(t *testing.T) {
	f := newFlowFixture(t, nil)
	f.h.Google.Accept("code", provider.Identity{ProviderID: "g", Email: "a@example.com", EmailVerified: true})

	redirect := &http.Cookie{Name: "redirectUrl", Value: "https://app.example/users"}
	restart := "https://app.example/auth/error?error=RESTART"

	tests := []struct {
		name     string
		provider string
		cookies  []*http.Cookie
		query    url.Values
	}{
		{
			name:     "missing verifier",
			provider: "google",
			cookies:  []*http.Cookie{redirect, {Name: "google_oauth_state", Value: "s"}, {Name: "method", Value: "login"}},
			query:    url.Values{"code": {"code"}, "state": {"s"}},
		},
		{
			name:     "invalid method",
			provider: "google",
			cookies:  []*http.Cookie{redirect, {Name: "google_oauth_state", Value: "s"}, {Name: "google_code_verifier", Value: "v"}, {Name: "method", Value: "admin"}},
			query:    url.Values{"code": {"code"}, "state": {"s"}},
		},
		{
			name:     "missing code",
			provider: "google",
			cookies:  []*http.Cookie{redirect, {Name: "google_oauth_state", Value: "s"}, {Name: "google_code_verifier", Value: "v"}, {Name: "method", Value: "login"}},
			query:    url.Values{"state": {"s"}},
		},
		{
			name:     "unknown provider",
			provider: "gitlab",
			cookies:  []*http.Cookie{redirect},
			query:    url.Values{"code": {"code"}, "state": {"s"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.callback(tt.provider, tt.cookies, tt.query)
			require.Equal(t, http.StatusFound, rec.Code)
			require.Equal(t, restart, rec.Header().Get("Location"))
			require.Less(t, cookieMap(rec)["redirectUrl"].MaxAge, 0)
		})
	}
	require.Empty(t, f.h.Google.Exchanges())
}
