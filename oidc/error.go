package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrInvalidCACert     = errors.New("invalid CA certificate")
	ErrIdGeneratorFailed = errors.New("id generation failed")
	ErrNotFound          = errors.New("not found")
	ErrMissingIdToken    = errors.New("id_token is missing")

	// ErrRequestNotFound is returned when no stored authorization request
	// matches a callback's state parameter.  It covers CSRF forgery, an
	// expired or replayed callback, and double-submission; there's no way to
	// tell them apart after the fact.
	ErrRequestNotFound = errors.New("authorization request not found")

	// ErrStateMismatch is returned when a stored authorization request's
	// state does not equal the state echoed in the callback, even though the
	// lookup by state succeeded.  Some storage backends may normalize or
	// collide keys, so this explicit comparison is kept in addition to the
	// keyed lookup.
	ErrStateMismatch = errors.New("callback state and authorization request state are not equal")
)

// ProviderError represents an OAuth2 error response delivered on the
// callback redirect (for example error=access_denied).  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type ProviderError struct {
	// Code is the OAuth2 error code
	Code string

	// Description is the optional error_description
	Description string

	// Uri is the optional error_uri
	Uri string
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authorization response error %q", e.Code)
	}
	return fmt.Sprintf("authorization response error %q: %s", e.Code, e.Description)
}

// TokenEndpointError represents a non-2xx response from the provider's token
// endpoint.  The raw body is carried so callers can log the provider's
// explanation.
type TokenEndpointError struct {
	// Status is the HTTP status code returned by the token endpoint
	Status int

	// Body is the raw response body
	Body []byte
}

// Error implements the error interface
func (e *TokenEndpointError) Error() string {
	return fmt.Sprintf("token endpoint returned status %d: %s", e.Status, string(e.Body))
}

// TransportError represents a network, DNS or TLS failure while talking to
// the provider.  It is never retried by this package; retry policy belongs to
// the caller.
type TransportError struct {
	// Cause is the underlying transport failure
	Cause error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %s", e.Cause)
}

// Unwrap supports errors.Is/errors.As on the underlying cause
func (e *TransportError) Unwrap() error { return e.Cause }

// MalformedResponseError represents a response body that could not be parsed
// (truncated or invalid JSON).  It is deliberately not treated as an empty
// response.
type MalformedResponseError struct {
	// Cause is the underlying parse failure
	Cause error
}

// Error implements the error interface
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %s", e.Cause)
}

// Unwrap supports errors.Is/errors.As on the underlying cause
func (e *MalformedResponseError) Unwrap() error { return e.Cause }

// UserInfoEndpointError represents a non-2xx response from the provider's
// UserInfo endpoint.
type UserInfoEndpointError struct {
	// Status is the HTTP status code returned by the UserInfo endpoint
	Status int
}

// Error implements the error interface
func (e *UserInfoEndpointError) Error() string {
	return fmt.Sprintf("userinfo endpoint returned status %d", e.Status)
}

// SubjectMismatchError is returned when the UserInfo response's subject claim
// does not equal the ID Token's subject claim.  This can indicate a UserInfo
// endpoint returning another user's data (stale cache, token confusion) and
// always fails the whole flow; neither source is silently preferred.
type SubjectMismatchError struct {
	// IdTokenSubject is the sub claim from the ID Token
	IdTokenSubject string

	// UserInfoSubject is the sub claim from the UserInfo response
	UserInfoSubject string
}

// Error implements the error interface
func (e *SubjectMismatchError) Error() string {
	return fmt.Sprintf("id_token subject %q and userinfo subject %q are not equal", e.IdTokenSubject, e.UserInfoSubject)
}

// SecurityError reports whether err is one of the security-relevant failures
// (a state or subject mismatch) rather than an ordinary transport, provider
// or parse failure.  Callers will typically want to log/alert these
// differently.
func SecurityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStateMismatch) {
		return true
	}
	var subErr *SubjectMismatchError
	return errors.As(err, &subErr)
}
