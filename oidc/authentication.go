package oidc

import "fmt"

// Authentication is the final authenticated principal: the validated
// exchange, the tokens it produced, and the resolved identity.  Assembling
// it is pure data composition with no I/O; it cannot fail given
// already-validated inputs, so any failure here is a programming fault
// rather than a recoverable condition.  No partially-authenticated
// principal is ever produced.
type Authentication struct {
	exchange *AuthorizationExchange
	token    *TokenResponse
	identity *Identity
}

// NewAuthentication assembles the authenticated principal.
func NewAuthentication(ex *AuthorizationExchange, t *TokenResponse, id *Identity) (*Authentication, error) {
	const op = "oidc.NewAuthentication"
	if ex == nil || ex.Request() == nil || ex.Response() == nil {
		return nil, fmt.Errorf("%s: exchange is nil: %w", op, ErrNilParameter)
	}
	if ex.Response().IsError() {
		return nil, fmt.Errorf("%s: exchange carries a provider error response: %w", op, ErrInvalidParameter)
	}
	if t == nil {
		return nil, fmt.Errorf("%s: token response is nil: %w", op, ErrNilParameter)
	}
	if t.AccessToken == "" {
		return nil, fmt.Errorf("%s: access token is empty: %w", op, ErrInvalidParameter)
	}
	if id == nil {
		return nil, fmt.Errorf("%s: identity is nil: %w", op, ErrNilParameter)
	}
	if id.Subject == "" {
		return nil, fmt.Errorf("%s: identity subject is empty: %w", op, ErrInvalidParameter)
	}
	return &Authentication{
		exchange: ex,
		token:    t,
		identity: id,
	}, nil
}

// Exchange returns the validated authorization exchange
func (a *Authentication) Exchange() *AuthorizationExchange { return a.exchange }

// Token returns the token response
func (a *Authentication) Token() *TokenResponse { return a.token }

// Identity returns the resolved identity
func (a *Authentication) Identity() *Identity { return a.identity }

// Name returns the principal identifier (the identity's Name)
func (a *Authentication) Name() string { return a.identity.Name }
