package oauthflow

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/authgate/provider"
)

const (
	cookieMethod      = "method"
	cookieRedirectURL = "redirectUrl"
)

// Method is how the user entered the flow. It is recorded with the sign-in
// but does not change what the callback does.
type Method string

const (
	MethodLogin    Method = "login"
	MethodRegister Method = "register"
)

func (m Method) valid() bool {
	return m == MethodLogin || m == MethodRegister
}

func stateCookieName(name provider.Name) string {
	return string(name) + "_oauth_state"
}

func verifierCookieName(name provider.Name) string {
	return string(name) + "_code_verifier"
}

// flowCookies is the handshake carried between init and callback.
type flowCookies struct {
	state        string
	codeVerifier string
	method       Method
}

// readFlowCookies parses everything except redirectUrl, which the callback
// reads on its own before anything else.
func readFlowCookies(r *http.Request, p provider.Client) (flowCookies, bool) {
	var fc flowCookies

	state, err := r.Cookie(stateCookieName(p.Name()))
	if err != nil || state.Value == "" {
		return fc, false
	}
	fc.state = state.Value

	if p.UsesPKCE() {
		verifier, err := r.Cookie(verifierCookieName(p.Name()))
		if err != nil || verifier.Value == "" {
			return fc, false
		}
		fc.codeVerifier = verifier.Value
	}

	method, err := r.Cookie(cookieMethod)
	if err != nil || !Method(method.Value).valid() {
		return fc, false
	}
	fc.method = Method(method.Value)

	return fc, true
}

// readRedirectURL returns the redirectUrl cookie when it holds an absolute
// http(s) URL.
func readRedirectURL(r *http.Request) (*url.URL, bool) {
	c, err := r.Cookie(cookieRedirectURL)
	if err != nil || c.Value == "" {
		return nil, false
	}
	u, err := url.Parse(c.Value)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, false
	}
	return u, true
}

func (c *Controller) flowCookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.flowMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Controller) expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Controller) setFlowCookies(w http.ResponseWriter, p provider.Client, state, verifier string, method Method, redirectURL string) {
	http.SetCookie(w, c.flowCookie(stateCookieName(p.Name()), state))
	if p.UsesPKCE() {
		http.SetCookie(w, c.flowCookie(verifierCookieName(p.Name()), verifier))
	}
	http.SetCookie(w, c.flowCookie(cookieMethod, string(method)))
	http.SetCookie(w, c.flowCookie(cookieRedirectURL, redirectURL))
}

func (c *Controller) clearFlowCookies(w http.ResponseWriter, p provider.Client) {
	if p != nil {
		http.SetCookie(w, c.expiredCookie(stateCookieName(p.Name())))
		if p.UsesPKCE() {
			http.SetCookie(w, c.expiredCookie(verifierCookieName(p.Name())))
		}
	}
	http.SetCookie(w, c.expiredCookie(cookieMethod))
	http.SetCookie(w, c.expiredCookie(cookieRedirectURL))
}
