package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/provider"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/userstore"
)

// OAuthLoginFailureKind classifies callback failures for root-level mapping
// onto user-facing error keys.
type OAuthLoginFailureKind int

const (
	OAuthLoginFailureNone OAuthLoginFailureKind = iota
	// OAuthLoginFailureRestart covers code exchange and identity fetch
	// failures. The user has to start the flow again.
	OAuthLoginFailureRestart
	OAuthLoginFailureUnverifiedEmail
	OAuthLoginFailureSameEmail
	OAuthLoginFailureInternal
)

// OAuthLoginSessions is the slice of the session manager the flow needs.
type OAuthLoginSessions interface {
	GenerateToken() (string, error)
	Create(ctx context.Context, token string, user *identity.User) (*session.Session, error)
}

// OAuthLoginDeps captures callback dependencies.
type OAuthLoginDeps struct {
	Users    userstore.Store
	Sessions OAuthLoginSessions
}

// OAuthLoginInput is the validated part of a provider callback.
type OAuthLoginInput struct {
	Provider     provider.Client
	Code         string
	CodeVerifier string
}

// OAuthLoginResult returns either the issued session or a classified
// failure.
type OAuthLoginResult struct {
	Failure OAuthLoginFailureKind
	Err     error

	Identity *provider.Identity
	User     *identity.User
	Created  bool
	Token    string
	Session  *session.Session
}

// RunOAuthLogin exchanges the authorization code, resolves or creates the
// local user and issues a session.
//
// Accounts are never linked across providers: an unknown (provider, id)
// pair whose email already belongs to someone fails with
// OAuthLoginFailureSameEmail.
func RunOAuthLogin(ctx context.Context, in OAuthLoginInput, deps OAuthLoginDeps) OAuthLoginResult {
	tok, err := in.Provider.ExchangeCode(ctx, in.Code, in.CodeVerifier)
	if err != nil {
		return OAuthLoginResult{Failure: OAuthLoginFailureRestart, Err: err}
	}

	ident, err := in.Provider.FetchIdentity(ctx, tok)
	if err != nil {
		return OAuthLoginResult{Failure: OAuthLoginFailureRestart, Err: err}
	}

	res := OAuthLoginResult{Identity: ident}

	user, err := deps.Users.FindByOAuthIdentity(ctx, string(ident.Provider), ident.ProviderID)
	if err != nil {
		res.Failure, res.Err = OAuthLoginFailureInternal, err
		return res
	}

	if user == nil {
		email, err := ident.VerifiedEmail()
		if err != nil {
			res.Failure, res.Err = OAuthLoginFailureUnverifiedEmail, err
			return res
		}

		inUse, err := deps.Users.EmailInUse(ctx, email)
		if err != nil {
			res.Failure, res.Err = OAuthLoginFailureInternal, err
			return res
		}
		if inUse {
			res.Failure, res.Err = OAuthLoginFailureSameEmail, userstore.ErrEmailInUse
			return res
		}

		user, err = deps.Users.CreateWithOAuthAccount(ctx, userstore.OAuthProfile{
			Provider:   string(ident.Provider),
			ProviderID: ident.ProviderID,
			Email:      email,
			Name:       ident.Name,
			AvatarURL:  ident.AvatarURL,
		})
		switch {
		case errors.Is(err, userstore.ErrAccountExists):
			// a concurrent callback for the same identity signed up first
			user, err = deps.Users.FindByOAuthIdentity(ctx, string(ident.Provider), ident.ProviderID)
			if err == nil && user == nil {
				err = userstore.ErrAccountExists
			}
			if err != nil {
				res.Failure, res.Err = OAuthLoginFailureInternal, err
				return res
			}
		case errors.Is(err, userstore.ErrEmailInUse):
			// lost a race with a concurrent sign-up for the same email
			res.Failure, res.Err = OAuthLoginFailureSameEmail, err
			return res
		case err != nil:
			res.Failure, res.Err = OAuthLoginFailureInternal, err
			return res
		default:
			res.Created = true
		}
	}
	res.User = user

	token, err := deps.Sessions.GenerateToken()
	if err != nil {
		res.Failure, res.Err = OAuthLoginFailureInternal, err
		return res
	}
	sess, err := deps.Sessions.Create(ctx, token, user)
	if err != nil {
		res.Failure, res.Err = OAuthLoginFailureInternal, err
		return res
	}

	res.Token = token
	res.Session = sess
	return res
}
