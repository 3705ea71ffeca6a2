package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/openrp/openrp/oidc/internal/strutils"
	"golang.org/x/oauth2"
)

// IdTokenClaims are the claims carried by a verified ID Token.  Decoding and
// validating the raw token is the job of an IdTokenVerifier collaborator; the
// claims are used here only transiently to build the resolved identity.
type IdTokenClaims map[string]interface{}

// Subject returns the claims' sub claim
func (c IdTokenClaims) Subject() string { return claimString(c, "sub") }

// UserInfoClaims are the claims returned by a provider's UserInfo endpoint.
type UserInfoClaims map[string]interface{}

// Subject returns the claims' sub claim
func (c UserInfoClaims) Subject() string { return claimString(c, "sub") }

// AuthorityAuthenticated is the single authority granted to every resolved
// identity.  Mapping granted scopes onto richer authorities is an extension
// point (see WithAuthorityMapper).
const AuthorityAuthenticated = "oidc:authenticated"

// Identity is the final resolved principal for an authenticated end-user.
type Identity struct {
	// Subject is the provider's stable unique identifier for the user
	Subject string

	// Name is the principal identifier: the claim value found under the
	// registration's UserNameAttribute (default "sub")
	Name string

	// DisplayName is a human-facing name resolved from the claims ("name",
	// then given+family name, then the UserNameAttribute, then Subject)
	DisplayName string

	// Claims is the full merged claim set the identity was resolved from
	Claims map[string]interface{}

	// Authorities are the granted authorities
	Authorities []string
}

// IdentityResolver turns tokens into a resolved user identity, including the
// ID Token / UserInfo subject cross-check.
type IdentityResolver interface {
	// Resolve derives the user's identity from the given tokens and
	// already-verified ID Token claims (which may be nil when the provider
	// issued no ID Token).
	Resolve(ctx context.Context, t *TokenResponse, r *Registration, idClaims IdTokenClaims) (*Identity, error)
}

// UserInfoResolver is the default IdentityResolver.  When the registration
// has a UserInfo endpoint and the granted scopes warrant calling it, it
// fetches UserInfo claims with the access token, cross-checks the subject
// against the ID Token and merges the two claim sources.  Otherwise identity
// is derived from ID Token claims alone with zero network calls.
type UserInfoResolver struct {
	authorityMapper func(grantedScopes []string) []string
	logger          hclog.Logger
}

// ensure that UserInfoResolver implements the IdentityResolver interface
var _ IdentityResolver = (*UserInfoResolver)(nil)

// NewUserInfoResolver creates a UserInfoResolver.
// Supported options:
//
//	WithAuthorityMapper
//	WithLogger
func NewUserInfoResolver(opt ...Option) *UserInfoResolver {
	opts := getResolverOpts(opt...)
	return &UserInfoResolver{
		authorityMapper: opts.withAuthorityMapper,
		logger:          opts.withLogger,
	}
}

// Resolve implements IdentityResolver.Resolve
func (u *UserInfoResolver) Resolve(ctx context.Context, t *TokenResponse, r *Registration, idClaims IdTokenClaims) (*Identity, error) {
	const op = "UserInfoResolver.Resolve"
	if t == nil {
		return nil, fmt.Errorf("%s: token response is nil: %w", op, ErrNilParameter)
	}
	if r == nil {
		return nil, fmt.Errorf("%s: registration is nil: %w", op, ErrNilParameter)
	}

	userInfoClaims, err := u.userInfoClaims(ctx, t, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if userInfoClaims == nil && idClaims == nil {
		return nil, fmt.Errorf("%s: neither id_token claims nor a userinfo response are available: %w", op, ErrInvalidParameter)
	}

	if userInfoClaims != nil && idClaims != nil {
		// never silently prefer one source: a userinfo endpoint returning a
		// different subject (stale cache, token confusion) fails the flow
		if idClaims.Subject() != userInfoClaims.Subject() {
			return nil, fmt.Errorf("%s: %w", op, &SubjectMismatchError{
				IdTokenSubject:  idClaims.Subject(),
				UserInfoSubject: userInfoClaims.Subject(),
			})
		}
	}

	// merged claim set: userinfo wins on collision since it is fresher; the
	// subject has already been validated equal across sources
	merged := make(map[string]interface{}, len(idClaims)+len(userInfoClaims))
	for k, v := range idClaims {
		merged[k] = v
	}
	for k, v := range userInfoClaims {
		merged[k] = v
	}

	subject := claimString(merged, "sub")
	if subject == "" {
		return nil, fmt.Errorf("%s: claims have no subject: %w", op, ErrInvalidParameter)
	}

	nameAttr := r.UserNameAttribute
	if nameAttr == "" {
		nameAttr = DefaultUserNameAttribute
	}
	name := claimString(merged, nameAttr)
	if name == "" {
		name = subject
	}

	authorities := []string{AuthorityAuthenticated}
	if u.authorityMapper != nil {
		authorities = u.authorityMapper(t.Scopes)
	}

	return &Identity{
		Subject:     subject,
		Name:        name,
		DisplayName: displayName(merged, nameAttr),
		Claims:      merged,
		Authorities: authorities,
	}, nil
}

// userInfoClaims fetches the UserInfo claims when the registration and the
// granted scopes call for it.  It returns nil claims (and no error) when the
// UserInfo request should be skipped.
func (u *UserInfoResolver) userInfoClaims(ctx context.Context, t *TokenResponse, r *Registration) (UserInfoClaims, error) {
	const op = "UserInfoResolver.userInfoClaims"
	if r.UserInfoEndpoint == "" {
		return nil, nil
	}
	// calling an endpoint that can't return data for these scopes would only
	// leak the access token
	if len(r.UserInfoRequiredScopes) > 0 && !strutils.StrListIntersects(t.Scopes, r.UserInfoRequiredScopes) {
		if u.logger != nil {
			u.logger.Debug("skipping userinfo: granted scopes don't allow it", "registration", r.ID)
		}
		return nil, nil
	}

	client, err := r.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: string(t.AccessToken),
		TokenType:   t.TokenType,
	})

	method := r.UserInfoMethod
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, r.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create userinfo request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := oauth2.NewClient(HTTPClientContext(ctx, client), tokenSource).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, &TransportError{Cause: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, &TransportError{Cause: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: %w", op, &UserInfoEndpointError{Status: resp.StatusCode})
	}

	var claims UserInfoClaims
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, &MalformedResponseError{Cause: err})
	}
	if claims.Subject() == "" {
		return nil, fmt.Errorf("%s: %w", op, &MalformedResponseError{Cause: fmt.Errorf("userinfo response has no subject: %w", ErrInvalidParameter)})
	}
	return claims, nil
}

// displayName resolves a human-facing name from the merged claims: the
// standard "name" claim, then given+family name, then the registration's
// username attribute, then the subject.
func displayName(claims map[string]interface{}, userNameAttribute string) string {
	if v := claimString(claims, "name"); v != "" {
		return v
	}
	given := claimString(claims, "given_name")
	family := claimString(claims, "family_name")
	if given != "" || family != "" {
		return strings.TrimSpace(given + " " + family)
	}
	if v := claimString(claims, userNameAttribute); v != "" {
		return v
	}
	return claimString(claims, "sub")
}

// claimString returns the string value of a claim, or "" when the claim is
// absent or not a string.
func claimString(claims map[string]interface{}, name string) string {
	if claims == nil {
		return ""
	}
	v, ok := claims[name].(string)
	if !ok {
		return ""
	}
	return v
}

// resolverOptions is the set of available options for NewUserInfoResolver
type resolverOptions struct {
	withAuthorityMapper func(grantedScopes []string) []string
	withLogger          hclog.Logger
}

// resolverDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func resolverDefaults() resolverOptions {
	return resolverOptions{}
}

// getResolverOpts gets the defaults and applies the opt overrides passed in
func getResolverOpts(opt ...Option) resolverOptions {
	opts := resolverDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAuthorityMapper provides an optional func mapping granted scopes onto
// the identity's authorities, replacing the single AuthorityAuthenticated
// default.
func WithAuthorityMapper(m func(grantedScopes []string) []string) Option {
	return func(o interface{}) {
		if o, ok := o.(*resolverOptions); ok {
			o.withAuthorityMapper = m
		}
	}
}
