package authgate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a request carries no live session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a request's origin cannot be trusted.
	// It is never turned into a redirect.
	ErrForbidden = errors.New("forbidden")
	// ErrFlowRateLimited is returned by AllowFlowStart when the client
	// started too many sign-in flows in the current window.
	ErrFlowRateLimited = errors.New("oauth flow rate limited")
	// ErrUnknownProvider is returned for a provider name the engine was not
	// built with.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorKey is the user-facing classification of a failed sign-in. It
// travels to the client in the error page's "error" query parameter.
type ErrorKey string

const (
	KeyRestart                    ErrorKey = "RESTART"
	KeyDefault                    ErrorKey = "DEFAULT"
	KeyUnverifiedEmail            ErrorKey = "OAUTH_UNVERIFIED_EMAIL"
	KeySameEmailDifferentProvider ErrorKey = "SAME_EMAIL_DIFFERENT_PROVIDER"
)

// ErrorKeys lists every key.
var ErrorKeys = []ErrorKey{
	KeyRestart,
	KeyDefault,
	KeyUnverifiedEmail,
	KeySameEmailDifferentProvider,
}

// Message returns the text shown to the user. Unknown keys get the
// DEFAULT message.
func (k ErrorKey) Message() string {
	switch k {
	case KeyRestart:
		return "Please try logging in or registering again."
	case KeyUnverifiedEmail:
		return "Please verify your email inside the sign-in provider you used, then try again."
	case KeySameEmailDifferentProvider:
		return "The email linked to your sign-in provider is already associated with a different account in our system. Please sign in with that account instead."
	case KeyDefault:
		return "Something went wrong! Please try again or contact support."
	default:
		return KeyDefault.Message()
	}
}

// Valid reports whether k is one of [ErrorKeys].
func (k ErrorKey) Valid() bool {
	switch k {
	case KeyRestart, KeyDefault, KeyUnverifiedEmail, KeySameEmailDifferentProvider:
		return true
	}
	return false
}

// AuthError is a classified sign-in failure.
type AuthError struct {
	Key   ErrorKey
	Cause error
}

// NewAuthError classifies cause under key.
func NewAuthError(key ErrorKey, cause error) *AuthError {
	return &AuthError{Key: key, Cause: cause}
}

func (e *AuthError) Error() string {
	if e.Cause == nil {
		return string(e.Key)
	}
	return fmt.Sprintf("%s: %v", e.Key, e.Cause)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// KeyOf returns the key of the first AuthError in err's chain, or
// KeyDefault when there is none.
func KeyOf(err error) ErrorKey {
	var ae *AuthError
	if errors.As(err, &ae) && ae.Key.Valid() {
		return ae.Key
	}
	return KeyDefault
}
