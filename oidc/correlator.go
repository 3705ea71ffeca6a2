package oidc

import (
	"context"
	"fmt"
)

// AuthorizationExchange pairs one authorization Request with its matching,
// validated AuthorizationResponse.  It is immutable once formed and is the
// input to the token exchange.
type AuthorizationExchange struct {
	request  *Request
	response *AuthorizationResponse
}

// Request returns the stored request half of the exchange
func (e *AuthorizationExchange) Request() *Request { return e.request }

// Response returns the callback response half of the exchange
func (e *AuthorizationExchange) Response() *AuthorizationResponse { return e.response }

// Correlator matches inbound callback responses with the stored
// authorization requests that produced them.  It performs no network I/O; it
// is a pure function of the stored request and the callback parameters.
type Correlator struct {
	store RequestStore
}

// NewCorrelator creates a Correlator backed by the given store.
func NewCorrelator(store RequestStore) (*Correlator, error) {
	const op = "oidc.NewCorrelator"
	if store == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, ErrNilParameter)
	}
	return &Correlator{store: store}, nil
}

// Correlate removes the authorization request matching the response's state
// from the store and produces the validated exchange pair, or a classified
// failure:
//
//   - ErrRequestNotFound: no stored request for that state
//   - *ProviderError: the response carries an OAuth2 error from the provider
//   - ErrStateMismatch: the stored request's state doesn't equal the echoed
//     state (defense in depth even though the lookup key already matched)
//
// The stored request is consumed even when the provider reported an error;
// the flow attempt is over either way.
func (c *Correlator) Correlate(ctx context.Context, contextKey string, resp *AuthorizationResponse) (*AuthorizationExchange, error) {
	const op = "Correlator.Correlate"
	if resp == nil {
		return nil, fmt.Errorf("%s: response is nil: %w", op, ErrNilParameter)
	}
	if resp.State == "" {
		return nil, fmt.Errorf("%s: response state is empty: %w", op, ErrRequestNotFound)
	}

	req, err := c.store.Remove(ctx, contextKey, resp.State)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to remove authorization request: %w", op, err)
	}
	if req == nil {
		return nil, fmt.Errorf("%s: no request for state: %w", op, ErrRequestNotFound)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%s: %w", op, &ProviderError{
			Code:        resp.Error,
			Description: resp.ErrorDescription,
			Uri:         resp.ErrorURI,
		})
	}

	// the state already matched as the lookup key; compare again in case the
	// store normalized or collided keys
	if req.State() != resp.State {
		return nil, fmt.Errorf("%s: %w", op, ErrStateMismatch)
	}

	return &AuthorizationExchange{
		request:  req,
		response: resp,
	}, nil
}
