package oidc

import (
	"fmt"
	"time"
)

// DefaultRequestExpiresIn is the default time-to-live for an authorization
// request.  A pending request that isn't completed within this window is
// treated as abandoned; the store sweeps it so stale requests can't
// accumulate unboundedly.
const DefaultRequestExpiresIn = 10 * time.Minute

// DefaultRequestExpirySkew defines a default time skew when checking a
// Request's expiration.
const DefaultRequestExpirySkew = 1 * time.Second

// Request represents one pending authorization attempt.  It contains the
// unguessable state value used to correlate the provider's asynchronous
// callback with the attempt that produced it.  A Request is immutable once
// created and is consumed (removed from its store) at most once.
type Request struct {
	// state is an unguessable value echoed by the provider on the callback;
	// correlating on it is the CSRF defense for the flow
	state string

	// nonce binds the ID Token to this attempt; it is verified by the
	// caller's ID Token verifier, not by this package
	nonce string

	// registrationID names the Registration this attempt belongs to
	registrationID string

	// scopes requested of the provider for this attempt
	scopes []string

	// redirectURL is the expanded callback URL sent to the provider
	redirectURL string

	// authorizationURL is the full provider authorization URL (endpoint plus
	// query) the user should be redirected to
	authorizationURL string

	// expiration is when this attempt is considered abandoned
	expiration time.Time

	// nowFunc is an optional time source for tests
	nowFunc func() time.Time
}

// NewRequest creates a new authorization Request for the given registration,
// generating a fresh state and nonce and building the authorization URL via
// the registration's strategy (or the builder passed with
// WithAuthURLBuilder).
//
// Supported options:
//
//	WithNow
//	WithExpiresIn
//	WithAuthURLBuilder
func NewRequest(r *Registration, opt ...Option) (*Request, error) {
	const op = "oidc.NewRequest"
	if r == nil {
		return nil, fmt.Errorf("%s: registration is nil: %w", op, ErrNilParameter)
	}
	opts := getReqOpts(opt...)

	state, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
	}
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
	}
	if opts.withExpiresIn <= 0 {
		return nil, fmt.Errorf("%s: expiresIn not greater than zero: %w", op, ErrInvalidParameter)
	}

	req := &Request{
		state:          state,
		nonce:          nonce,
		registrationID: r.ID,
		scopes:         append([]string(nil), r.Scopes...),
		redirectURL:    r.ExpandRedirectURL(),
		nowFunc:        opts.withNowFunc,
	}
	req.expiration = req.now().Add(opts.withExpiresIn)

	authorizationURL, err := opts.withAuthURLBuilder(r, req)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to build authorization URL: %w", op, err)
	}
	req.authorizationURL = authorizationURL

	return req, nil
}

// State returns the request's unguessable correlation value
func (r *Request) State() string { return r.state }

// Nonce returns the request's ID Token nonce
func (r *Request) Nonce() string { return r.nonce }

// RegistrationID returns the id of the Registration the request belongs to
func (r *Request) RegistrationID() string { return r.registrationID }

// Scopes returns the scopes requested of the provider
func (r *Request) Scopes() []string { return append([]string(nil), r.scopes...) }

// RedirectURL returns the callback URL sent to the provider
func (r *Request) RedirectURL() string { return r.redirectURL }

// AuthorizationURL returns the provider authorization URL the user should be
// redirected to in order to start the flow
func (r *Request) AuthorizationURL() string { return r.authorizationURL }

// IsExpired returns true if the request has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultRequestExpirySkew.
func (r *Request) IsExpired(opt ...Option) bool {
	opts := getReqOpts(opt...)
	return r.expiration.Before(r.now().Add(opts.withExpirySkew))
}

// now returns the current time using the request's optional time source
func (r *Request) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now()
}

// reqOptions is the set of available options for Request functions
type reqOptions struct {
	withNowFunc        func() time.Time
	withExpirySkew     time.Duration
	withExpiresIn      time.Duration
	withAuthURLBuilder AuthURLBuilder
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{
		withExpirySkew:     DefaultRequestExpirySkew,
		withExpiresIn:      DefaultRequestExpiresIn,
		withAuthURLBuilder: BuildAuthCodeURL,
	}
}

// getReqOpts gets the request defaults and applies the opt overrides passed
// in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithExpiresIn provides an optional time-to-live for a new Request (default:
// DefaultRequestExpiresIn)
func WithExpiresIn(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withExpiresIn = d
		}
	}
}

// WithAuthURLBuilder provides an optional AuthURLBuilder for a new Request,
// overriding the registration's named strategy
func WithAuthURLBuilder(b AuthURLBuilder) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok && b != nil {
			o.withAuthURLBuilder = b
		}
	}
}
