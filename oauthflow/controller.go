package oauthflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/MrEthical07/authgate/origin"
	"github.com/MrEthical07/authgate/provider"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ProviderParam is the chi URL parameter holding the provider name.
const ProviderParam = "provider"

var (
	errMissingFlowCookies = errors.New("oauth flow cookies missing or invalid")
	errMissingQuery       = errors.New("code or state query parameter missing")
	errStateMismatch      = errors.New("oauth state mismatch")
)

// Controller serves the browser side of the authorization-code flow for
// every provider registered with the Engine.
type Controller struct {
	engine     *authgate.Engine
	logger     *zap.Logger
	secure     bool
	flowMaxAge time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger overrides the Engine's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a Controller. Cookie settings come from the Engine config.
func New(engine *authgate.Engine, opts ...Option) *Controller {
	cfg := engine.Config()
	c := &Controller{
		engine:     engine,
		logger:     engine.Logger(),
		secure:     cfg.Cookies.Secure,
		flowMaxAge: cfg.Cookies.FlowMaxAge,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("oauthflow")
	return c
}

// Routes mounts GET /{provider} and GET /{provider}/callback on r.
func (c *Controller) Routes(r chi.Router) {
	r.Get("/{"+ProviderParam+"}", c.Init)
	r.Get("/{"+ProviderParam+"}/callback", c.Callback)
}

// Init starts a sign-in: it checks the query and the calling origin, sets
// the handshake cookies and redirects to the provider.
func (c *Controller) Init(w http.ResponseWriter, r *http.Request) {
	p, err := c.engine.Provider(chi.URLParam(r, ProviderParam))
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Not Found")
		return
	}

	q, err := parseInitQuery(r.URL.Query())
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := origin.ResolveRequestOrigin(r)
	if err != nil || !c.engine.Origins().Validate(o) {
		c.engine.RecordMetric(authgate.MetricOriginRejected)
		middleware.WriteError(w, http.StatusForbidden, "Forbidden")
		return
	}

	ctx := withClientIP(r)
	if err := c.engine.AllowFlowStart(ctx, string(p.Name())); err != nil {
		if errors.Is(err, authgate.ErrFlowRateLimited) {
			middleware.WriteError(w, http.StatusTooManyRequests, "Too Many Requests")
			return
		}
		c.logger.Error("flow rate limiter unavailable", zap.Error(err))
		middleware.WriteError(w, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}

	req, err := p.AuthorizationRequest()
	if err != nil {
		c.logger.Error("build authorization request", zap.String("provider", string(p.Name())), zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	c.setFlowCookies(w, p, req.State, req.CodeVerifier, q.method, o+q.redirectURL)
	http.Redirect(w, r, req.URL, http.StatusFound)
}

// callbackState is what the error boundary knows about a callback. origin
// is empty until the redirectUrl cookie has been checked.
type callbackState struct {
	origin      string
	redirectURL string
	provider    provider.Client
}

// Callback completes a sign-in. Once the redirectUrl cookie names a
// registered origin, every failure redirects to that origin's error page
// with the error key; before that the request gets 403.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	st := &callbackState{}
	if err := c.callback(w, r, st); err != nil {
		c.fail(w, r, st, err)
	}
}

func (c *Controller) callback(w http.ResponseWriter, r *http.Request, st *callbackState) error {
	redirectURL, ok := readRedirectURL(r)
	if !ok {
		return authgate.ErrForbidden
	}
	o, err := origin.FromURL(redirectURL)
	if err != nil || !c.engine.Origins().Validate(o) {
		c.engine.RecordMetric(authgate.MetricOriginRejected)
		return authgate.ErrForbidden
	}
	st.origin = o
	st.redirectURL = redirectURL.String()

	name := chi.URLParam(r, ProviderParam)
	p, err := c.engine.Provider(name)
	if err != nil {
		return authgate.NewAuthError(authgate.KeyRestart, err)
	}
	st.provider = p

	cookies, ok := readFlowCookies(r, p)
	if !ok {
		return authgate.NewAuthError(authgate.KeyRestart, errMissingFlowCookies)
	}

	query := r.URL.Query()
	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		return authgate.NewAuthError(authgate.KeyRestart, errMissingQuery)
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(cookies.state)) != 1 {
		return authgate.NewAuthError(authgate.KeyRestart, errStateMismatch)
	}

	res, err := c.engine.CompleteOAuth(withClientIP(r), authgate.OAuthCallback{
		Provider:     name,
		Code:         code,
		CodeVerifier: cookies.codeVerifier,
		Method:       string(cookies.method),
	})
	if err != nil {
		return err
	}

	c.clearFlowCookies(w, p)
	http.SetCookie(w, c.engine.SessionCookie(res.Token, res.Session))
	http.Redirect(w, r, st.redirectURL, http.StatusFound)
	return nil
}

func (c *Controller) fail(w http.ResponseWriter, r *http.Request, st *callbackState, err error) {
	if st.origin == "" || errors.Is(err, authgate.ErrForbidden) {
		middleware.WriteError(w, http.StatusForbidden, "Forbidden")
		return
	}

	// The Engine already logged DEFAULT failures at error level.
	key := authgate.KeyOf(err)
	c.logger.Debug("oauth callback rejected", zap.String("origin", st.origin), zap.String("key", string(key)), zap.Error(err))

	c.clearFlowCookies(w, st.provider)
	http.Redirect(w, r, c.engine.Origins().ErrorURL(st.origin, string(key)), http.StatusFound)
}

func withClientIP(r *http.Request) context.Context {
	ctx := r.Context()
	if authgate.ClientIPFromContext(ctx) != "" {
		return ctx
	}
	return authgate.WithClientIP(ctx, middleware.RemoteIP(r))
}
