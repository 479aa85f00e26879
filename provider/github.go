package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/sync/errgroup"
)

// DefaultGitHubAPI is the base URL of GitHub's REST API.
const DefaultGitHubAPI = "https://api.github.com"

const maxAPIResponseBytes = 1 << 20

var githubDefaultScopes = []string{"user:email"}

// GitHubProvider signs users in with a GitHub OAuth app. GitHub does not
// issue ID tokens, so identity comes from the REST API.
type GitHubProvider struct {
	oauth   oauth2.Config
	apiBase string
	http    *http.Client
	timeout time.Duration
}

var _ Client = (*GitHubProvider)(nil)

// NewGitHub builds a GitHub client. An empty apiBase selects
// [DefaultGitHubAPI].
func NewGitHub(cfg Config, apiBase string) (*GitHubProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = endpoints.GitHub
	}
	if apiBase == "" {
		apiBase = DefaultGitHubAPI
	}
	return &GitHubProvider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       githubDefaultScopes,
		},
		apiBase: strings.TrimRight(apiBase, "/"),
		http:    cfg.httpClient(),
		timeout: cfg.timeout(),
	}, nil
}

func (g *GitHubProvider) Name() Name { return GitHub }

func (g *GitHubProvider) UsesPKCE() bool { return false }

func (g *GitHubProvider) AuthorizationRequest(scopes ...string) (AuthRequest, error) {
	state, err := GenerateState()
	if err != nil {
		return AuthRequest{}, err
	}
	cfg := g.oauth
	if len(scopes) > 0 {
		cfg.Scopes = scopes
	}
	return AuthRequest{
		URL:   cfg.AuthCodeURL(state),
		State: state,
	}, nil
}

func (g *GitHubProvider) ExchangeCode(ctx context.Context, code, _ string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrExchangeFailed)
	}
	ctx, cancel := context.WithTimeout(withHTTPClient(ctx, g.http), g.timeout)
	defer cancel()

	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return tok, nil
}

type githubUser struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	AvatarURL string  `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchIdentity loads the profile and the email list concurrently. The
// primary verified address is preferred; an empty email list means the
// grant lacked the user:email scope and is reported as unavailable.
func (g *GitHubProvider) FetchIdentity(ctx context.Context, tok *oauth2.Token) (*Identity, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: missing token", ErrIdentityUnavailable)
	}

	ctx, cancel := context.WithTimeout(withHTTPClient(ctx, g.http), g.timeout)
	defer cancel()
	client := g.oauth.Client(ctx, tok)

	var (
		user   githubUser
		emails []githubEmail
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return g.getJSON(gctx, client, "/user", &user)
	})
	group.Go(func() error {
		return g.getJSON(gctx, client, "/user/emails", &emails)
	})
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	if user.ID == 0 {
		return nil, fmt.Errorf("%w: github user has no id", ErrIdentityUnavailable)
	}
	if len(emails) == 0 {
		return nil, fmt.Errorf("%w: github returned no email addresses", ErrIdentityUnavailable)
	}

	id := &Identity{
		Provider:   GitHub,
		ProviderID: strconv.FormatInt(user.ID, 10),
		Name:       user.Login,
		AvatarURL:  user.AvatarURL,
	}
	if user.Name != nil && strings.TrimSpace(*user.Name) != "" {
		id.Name = *user.Name
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			id.Email = e.Email
			id.EmailVerified = true
			break
		}
		if e.Primary {
			id.Email = e.Email
		}
	}
	return id, nil
}

func (g *GitHubProvider) getJSON(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "authgate")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxAPIResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, body)
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}
