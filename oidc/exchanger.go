package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// TokenExchanger exchanges an authorization code for tokens at a provider's
// token endpoint.  It is a single-call capability which may be swapped per
// registration; different providers sometimes need different authentication
// schemes.
//
// Authorization codes are single-use at the provider, so an exchange must not
// be attempted twice for the same code.  Failures are classified
// (*TokenEndpointError, *TransportError) and never retried here; retry policy
// is a caller concern - and restarting means a whole new authorization
// request.
type TokenExchanger interface {
	// Exchange sends the authorization code, redirect URL and client
	// credentials to the registration's token endpoint.  The exchange must
	// be a success exchange (it cannot carry a provider error response).
	Exchange(ctx context.Context, ex *AuthorizationExchange, r *Registration) (*TokenResponse, error)
}

// HTTPTokenExchanger is the default TokenExchanger.  It authenticates with
// the registration's configured client auth method.
type HTTPTokenExchanger struct{}

// ensure that HTTPTokenExchanger implements the TokenExchanger interface
var _ TokenExchanger = (*HTTPTokenExchanger)(nil)

// NewHTTPTokenExchanger creates an HTTPTokenExchanger.
func NewHTTPTokenExchanger() *HTTPTokenExchanger {
	return &HTTPTokenExchanger{}
}

// Exchange implements TokenExchanger.Exchange
func (e *HTTPTokenExchanger) Exchange(ctx context.Context, ex *AuthorizationExchange, r *Registration) (*TokenResponse, error) {
	const op = "HTTPTokenExchanger.Exchange"
	if ex == nil || ex.Request() == nil || ex.Response() == nil {
		return nil, fmt.Errorf("%s: exchange is nil: %w", op, ErrNilParameter)
	}
	if r == nil {
		return nil, fmt.Errorf("%s: registration is nil: %w", op, ErrNilParameter)
	}
	if ex.Request().RegistrationID() != r.ID {
		return nil, fmt.Errorf("%s: exchange belongs to registration %q not %q: %w", op, ex.Request().RegistrationID(), r.ID, ErrInvalidParameter)
	}
	if ex.Response().IsError() {
		return nil, fmt.Errorf("%s: exchange carries a provider error response: %w", op, ErrInvalidParameter)
	}
	if ex.Response().Code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}

	client, err := r.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}

	oauth2Config := oauth2.Config{
		ClientID:     r.ClientID,
		ClientSecret: string(r.ClientSecret),
		RedirectURL:  ex.Request().RedirectURL(),
		Endpoint: oauth2.Endpoint{
			TokenURL:  r.TokenEndpoint,
			AuthStyle: authStyle(r.AuthMethod),
		},
		Scopes: ex.Request().Scopes(),
	}

	oauth2Token, err := oauth2Config.Exchange(HTTPClientContext(ctx, client), ex.Response().Code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, fmt.Errorf("%s: %w", op, &TokenEndpointError{
				Status: retrieveErr.Response.StatusCode,
				Body:   retrieveErr.Body,
			})
		}
		return nil, fmt.Errorf("%s: %w", op, &TransportError{Cause: err})
	}

	t := &TokenResponse{
		AccessToken:  AccessToken(oauth2Token.AccessToken),
		TokenType:    oauth2Token.Type(),
		RefreshToken: RefreshToken(oauth2Token.RefreshToken),
		Expiry:       oauth2Token.Expiry,
		Scopes:       grantedScopes(oauth2Token, ex.Request().Scopes()),
	}
	if idToken, ok := oauth2Token.Extra("id_token").(string); ok {
		t.IdToken = IdToken(idToken)
	}
	return t, nil
}

// grantedScopes parses the token response's scope parameter.  Per RFC 6749
// section 5.1 a provider that omits it granted exactly the requested scopes.
func grantedScopes(t *oauth2.Token, requested []string) []string {
	if scope, ok := t.Extra("scope").(string); ok && scope != "" {
		return strings.Fields(scope)
	}
	return append([]string(nil), requested...)
}

// authStyle maps a registration's client auth method onto the oauth2
// package's auth styles.
func authStyle(m ClientAuthMethod) oauth2.AuthStyle {
	switch m {
	case ClientSecretPost, ClientAuthNone:
		return oauth2.AuthStyleInParams
	default:
		return oauth2.AuthStyleInHeader
	}
}
