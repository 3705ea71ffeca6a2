package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/openrp/openrp/oidc/internal/strutils"
)

// IdTokenVerifier validates a raw ID Token for a registration and returns
// its claims.  Signature, issuer, audience and nonce checks belong to the
// verifier; this package only requires that the claims it gets back came
// from a token the verifier accepted.
type IdTokenVerifier interface {
	Verify(ctx context.Context, r *Registration, t IdToken) (IdTokenClaims, error)
}

// RawClaimsVerifier is an IdTokenVerifier that decodes claims WITHOUT any
// signature or issuer verification.  It exists so the flow is usable behind
// a gateway that has already verified the token; anywhere else, supply a
// real verifier with WithIdTokenVerifier.
type RawClaimsVerifier struct{}

// ensure that RawClaimsVerifier implements the IdTokenVerifier interface
var _ IdTokenVerifier = (*RawClaimsVerifier)(nil)

// Verify implements IdTokenVerifier.Verify.  No signature verification is
// performed.
func (v *RawClaimsVerifier) Verify(ctx context.Context, r *Registration, t IdToken) (IdTokenClaims, error) {
	const op = "RawClaimsVerifier.Verify"
	var claims IdTokenClaims
	if err := t.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to decode id_token claims: %w", op, err)
	}
	return claims, nil
}

// Flow drives the authorization code grant from the relying party side:
// Begin builds and persists an authorization request; Finish correlates the
// provider's callback with that request, exchanges the code for tokens and
// resolves the authenticated identity.
//
// A Flow is stateless between calls except for its RequestStore, so flow
// instances may run concurrently with no shared mutable state other than the
// store.  Every failure is terminal for that attempt: the caller decides
// whether to restart with a brand-new Begin (and so a new state value).
type Flow struct {
	registrations map[string]*Registration
	store         RequestStore
	correlator    *Correlator
	exchanger     TokenExchanger
	resolver      IdentityResolver
	verifier      IdTokenVerifier
	builders      *BuilderRegistry
	logger        hclog.Logger
}

// NewFlow creates a Flow over the given registrations.
// Supported options:
//
//	WithTokenExchanger
//	WithIdentityResolver
//	WithIdTokenVerifier
//	WithBuilderRegistry
//	WithLogger
func NewFlow(store RequestStore, registrations []*Registration, opt ...Option) (*Flow, error) {
	const op = "oidc.NewFlow"
	if store == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, ErrNilParameter)
	}
	if len(registrations) == 0 {
		return nil, fmt.Errorf("%s: no registrations: %w", op, ErrInvalidParameter)
	}
	opts := getFlowOpts(opt...)

	byID := make(map[string]*Registration, len(registrations))
	for _, r := range registrations {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if _, ok := byID[r.ID]; ok {
			return nil, fmt.Errorf("%s: duplicate registration id %q: %w", op, r.ID, ErrInvalidParameter)
		}
		byID[r.ID] = r
	}

	correlator, err := NewCorrelator(store)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Flow{
		registrations: byID,
		store:         store,
		correlator:    correlator,
		exchanger:     opts.withTokenExchanger,
		resolver:      opts.withIdentityResolver,
		verifier:      opts.withIdTokenVerifier,
		builders:      opts.withBuilderRegistry,
		logger:        opts.withLogger,
	}, nil
}

// Registration returns the registration with the given id.
func (f *Flow) Registration(id string) (*Registration, error) {
	const op = "Flow.Registration"
	r, ok := f.registrations[id]
	if !ok {
		return nil, fmt.Errorf("%s: no registration with id %q: %w", op, id, ErrNotFound)
	}
	return r, nil
}

// Begin starts a new authorization attempt for the registration: it creates
// a Request with a fresh state and nonce, persists it in the store under
// contextKey and returns it.  The caller redirects the user to
// Request.AuthorizationURL().
//
// Supported options: WithExpiresIn, WithNow
func (f *Flow) Begin(ctx context.Context, contextKey, registrationID string, opt ...Option) (*Request, error) {
	const op = "Flow.Begin"
	r, err := f.Registration(registrationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	builder, err := f.builders.Resolve(r.AuthURLStrategy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := NewRequest(r, append(opt, WithAuthURLBuilder(builder))...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := f.store.Save(ctx, contextKey, req); err != nil {
		return nil, fmt.Errorf("%s: unable to save authorization request: %w", op, err)
	}
	f.logger.Debug("authorization request stored", "registration", registrationID)
	return req, nil
}

// Finish completes an authorization attempt from the provider's callback
// response: correlate against the stored request, exchange the code for
// tokens, verify/decode ID Token claims, resolve the identity and assemble
// the authenticated principal.  Any failure is terminal for the attempt and
// is returned as a classified error (see the package error types); no
// partially-authenticated principal is ever returned.
func (f *Flow) Finish(ctx context.Context, contextKey string, resp *AuthorizationResponse) (*Authentication, error) {
	const op = "Flow.Finish"

	ex, err := f.correlator.Correlate(ctx, contextKey, resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r, err := f.Registration(ex.Request().RegistrationID())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f.logger.Debug("callback correlated", "registration", r.ID)

	t, err := f.exchanger.Exchange(ctx, ex, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f.logger.Debug("authorization code exchanged", "registration", r.ID)

	var idClaims IdTokenClaims
	switch {
	case t.IdToken != "":
		idClaims, err = f.verifier.Verify(ctx, r, t.IdToken)
		if err != nil {
			return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
		}
	case strutils.StrListContains(ex.Request().Scopes(), oidc.ScopeOpenID):
		return nil, fmt.Errorf("%s: id_token is missing from the code exchange: %w", op, ErrMissingIdToken)
	}

	identity, err := f.resolver.Resolve(ctx, t, r, idClaims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f.logger.Debug("identity resolved", "registration", r.ID, "subject", identity.Subject)

	a, err := NewAuthentication(ex, t, identity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// flowOptions is the set of available options for NewFlow
type flowOptions struct {
	withTokenExchanger   TokenExchanger
	withIdentityResolver IdentityResolver
	withIdTokenVerifier  IdTokenVerifier
	withBuilderRegistry  *BuilderRegistry
	withLogger           hclog.Logger
}

// flowDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func flowDefaults() flowOptions {
	return flowOptions{
		withTokenExchanger:   NewHTTPTokenExchanger(),
		withIdentityResolver: NewUserInfoResolver(),
		withIdTokenVerifier:  &RawClaimsVerifier{},
		withBuilderRegistry:  NewBuilderRegistry(),
		withLogger:           hclog.NewNullLogger(),
	}
}

// getFlowOpts gets the defaults and applies the opt overrides passed in
func getFlowOpts(opt ...Option) flowOptions {
	opts := flowDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTokenExchanger provides an optional TokenExchanger for a Flow
// (default: HTTPTokenExchanger)
func WithTokenExchanger(e TokenExchanger) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && e != nil {
			o.withTokenExchanger = e
		}
	}
}

// WithIdentityResolver provides an optional IdentityResolver for a Flow
// (default: UserInfoResolver)
func WithIdentityResolver(r IdentityResolver) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && r != nil {
			o.withIdentityResolver = r
		}
	}
}

// WithIdTokenVerifier provides an optional IdTokenVerifier for a Flow
// (default: RawClaimsVerifier, which does NOT verify signatures)
func WithIdTokenVerifier(v IdTokenVerifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && v != nil {
			o.withIdTokenVerifier = v
		}
	}
}

// WithBuilderRegistry provides an optional BuilderRegistry for a Flow
func WithBuilderRegistry(r *BuilderRegistry) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && r != nil {
			o.withBuilderRegistry = r
		}
	}
}

// WithLogger provides an optional logger for: Flow, UserInfoResolver
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *flowOptions:
			v.withLogger = l
		case *resolverOptions:
			v.withLogger = l
		}
	}
}
