package oidc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-multierror"
	"github.com/openrp/openrp/oidc/internal/strutils"
)

// ClientSecret is an oauth client secret
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// ClientAuthMethod is how the relying party authenticates to the provider's
// token endpoint.
type ClientAuthMethod string

const (
	// ClientSecretBasic sends the client id/secret as an HTTP basic auth header
	ClientSecretBasic ClientAuthMethod = "client_secret_basic"

	// ClientSecretPost sends the client id/secret as form body parameters
	ClientSecretPost ClientAuthMethod = "client_secret_post"

	// ClientAuthNone is for public clients with no secret
	ClientAuthNone ClientAuthMethod = "none"
)

// GrantAuthorizationCode is the only grant type supported by this package.
const GrantAuthorizationCode = "authorization_code"

// DefaultUserNameAttribute is the claim used as the principal's name when a
// registration doesn't specify one.
const DefaultUserNameAttribute = "sub"

// RegistrationIDPlaceholder is expanded to the registration's ID within a
// redirect URL, which lets one template serve multiple providers.
const RegistrationIDPlaceholder = "{registrationId}"

// Registration is the static descriptor of one OAuth2/OIDC provider a relying
// party can log users in with.  It is created once at configuration time,
// never mutated, and shared read-only by every flow instance.
type Registration struct {
	// ID uniquely identifies the registration (for example "google" or
	// "corp-okta")
	ID string

	// ClientID is the relying party id issued by the provider
	ClientID string

	// ClientSecret is the relying party secret issued by the provider.  It
	// may be empty when AuthMethod is ClientAuthNone.
	ClientSecret ClientSecret

	// AuthorizationEndpoint is the provider's authorization endpoint URL
	AuthorizationEndpoint string

	// TokenEndpoint is the provider's token endpoint URL
	TokenEndpoint string

	// UserInfoEndpoint is the provider's UserInfo endpoint URL.  When empty,
	// identity is resolved from ID Token claims alone and no UserInfo request
	// is ever made.
	UserInfoEndpoint string

	// RedirectURL is the relying party's callback URL.  It may contain the
	// RegistrationIDPlaceholder.
	RedirectURL string

	// Scopes are the scopes requested of the provider.  The provider may
	// grant fewer; granted scopes are reported on the TokenResponse.
	Scopes []string

	// AuthMethod is how the client authenticates to the token endpoint
	AuthMethod ClientAuthMethod

	// GrantType is the OAuth2 grant type.  Only GrantAuthorizationCode is
	// supported.
	GrantType string

	// UserNameAttribute is the claim whose value becomes the resolved
	// identity's Name.  Defaults to DefaultUserNameAttribute.
	UserNameAttribute string

	// UserInfoRequiredScopes gates the UserInfo call: when non-empty, the
	// call is skipped unless the granted token scopes intersect this set.
	// Real providers vary in which scopes make UserInfo useful, so this is
	// configuration rather than a hardcoded list.  Defaults to ["openid"].
	UserInfoRequiredScopes []string

	// UserInfoMethod is the HTTP method for the UserInfo request, GET or POST
	// per the provider's documentation.  Defaults to GET.
	UserInfoMethod string

	// AuthURLStrategy names the registered AuthURLBuilder used to construct
	// authorization URLs for this registration.  Defaults to
	// DefaultAuthURLStrategy.
	AuthURLStrategy string

	// ProviderCA is an optional CA cert PEM to trust when sending requests to
	// the provider
	ProviderCA string
}

// NewRegistration composes a new provider registration.
// Supported options:
//
//	WithScopes
//	WithUserInfoEndpoint
//	WithAuthMethod
//	WithUserNameAttribute
//	WithUserInfoRequiredScopes
//	WithUserInfoMethod
//	WithAuthURLStrategy
//	WithProviderCA
func NewRegistration(id, clientID string, clientSecret ClientSecret, authorizationEndpoint, tokenEndpoint, redirectURL string, opt ...Option) (*Registration, error) {
	const op = "oidc.NewRegistration"
	opts := getRegistrationOpts(opt...)
	r := &Registration{
		ID:                     id,
		ClientID:               clientID,
		ClientSecret:           clientSecret,
		AuthorizationEndpoint:  authorizationEndpoint,
		TokenEndpoint:          tokenEndpoint,
		UserInfoEndpoint:       opts.withUserInfoEndpoint,
		RedirectURL:            redirectURL,
		Scopes:                 strutils.RemoveDuplicatesStable(opts.withScopes, false),
		AuthMethod:             opts.withAuthMethod,
		GrantType:              GrantAuthorizationCode,
		UserNameAttribute:      opts.withUserNameAttribute,
		UserInfoRequiredScopes: opts.withUserInfoRequiredScopes,
		UserInfoMethod:         opts.withUserInfoMethod,
		AuthURLStrategy:        opts.withAuthURLStrategy,
		ProviderCA:             opts.withProviderCA,
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid registration: %w", op, err)
	}
	return r, nil
}

// Validate the registration.  It verifies the endpoints parse as http(s)
// URLs, but doesn't verify they are reachable.  All problems found are
// reported, not just the first.
func (r *Registration) Validate() error {
	const op = "Registration.Validate"
	if r == nil {
		return fmt.Errorf("%s: registration is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if r.ID == "" {
		result = multierror.Append(result, fmt.Errorf("registration id is empty: %w", ErrInvalidParameter))
	}
	if r.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if r.ClientSecret == "" && r.AuthMethod != ClientAuthNone {
		result = multierror.Append(result, fmt.Errorf("client secret is empty: %w", ErrInvalidParameter))
	}
	for name, u := range map[string]string{
		"authorization endpoint": r.AuthorizationEndpoint,
		"token endpoint":         r.TokenEndpoint,
		"redirect URL":           r.RedirectURL,
	} {
		if u == "" {
			result = multierror.Append(result, fmt.Errorf("%s is empty: %w", name, ErrInvalidParameter))
			continue
		}
		if err := validateURL(name, u); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if r.UserInfoEndpoint != "" {
		if err := validateURL("userinfo endpoint", r.UserInfoEndpoint); err != nil {
			result = multierror.Append(result, err)
		}
	}
	switch r.AuthMethod {
	case ClientSecretBasic, ClientSecretPost, ClientAuthNone:
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported client auth method %q: %w", r.AuthMethod, ErrInvalidParameter))
	}
	if r.GrantType != GrantAuthorizationCode {
		result = multierror.Append(result, fmt.Errorf("unsupported grant type %q: %w", r.GrantType, ErrInvalidParameter))
	}
	switch r.UserInfoMethod {
	case http.MethodGet, http.MethodPost:
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported userinfo method %q: %w", r.UserInfoMethod, ErrInvalidParameter))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %s is invalid: %w", name, raw, err)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
		return fmt.Errorf("%s %s scheme is not http or https: %w", name, raw, ErrInvalidParameter)
	}
	return nil
}

// ExpandRedirectURL returns the redirect URL with the
// RegistrationIDPlaceholder (if any) replaced by the registration's ID.
func (r *Registration) ExpandRedirectURL() string {
	return strings.ReplaceAll(r.RedirectURL, RegistrationIDPlaceholder, r.ID)
}

// registrationOptions is the set of available options for NewRegistration
type registrationOptions struct {
	withScopes                 []string
	withUserInfoEndpoint       string
	withAuthMethod             ClientAuthMethod
	withUserNameAttribute      string
	withUserInfoRequiredScopes []string
	withUserInfoMethod         string
	withAuthURLStrategy        string
	withProviderCA             string
}

// registrationDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func registrationDefaults() registrationOptions {
	return registrationOptions{
		withScopes:                 []string{oidc.ScopeOpenID},
		withAuthMethod:             ClientSecretBasic,
		withUserNameAttribute:      DefaultUserNameAttribute,
		withUserInfoRequiredScopes: []string{oidc.ScopeOpenID},
		withUserInfoMethod:         http.MethodGet,
		withAuthURLStrategy:        DefaultAuthURLStrategy,
	}
}

// getRegistrationOpts gets the defaults and applies the opt overrides passed
// in.
func getRegistrationOpts(opt ...Option) registrationOptions {
	opts := registrationDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes to request of the provider.
// The required "openid" scope is requested by default; passing WithScopes
// replaces the default entirely, so include "openid" for OIDC providers.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*registrationOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithUserInfoEndpoint provides an optional UserInfo endpoint URL for a
// registration
func WithUserInfoEndpoint(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*registrationOptions); ok {
			o.withUserInfoEndpoint = u
		}
	}
}

// WithAuthMethod provides an optional client auth method for a registration
// (default: ClientSecretBasic)
func WithAuthMethod(m ClientAuthMethod) Option {
	return func(o interface{}) {
		if o, ok := o.(*registrationOptions); ok {
			o.withAuthMethod = m
		}
	}
}

// WithUserNameAttribute provides an optional claim name used as the resolved
// identity's Name (default: "sub")
func WithUserNameAttribute(attr string) Option {
	return func(o interface{}) {
		if o, ok := o.(*registrationOptions); ok {
			o.withUserNameAttribute = attr
		}
	}
}

// WithUserInfoRequiredScopes provides an optional set of scopes which must
// intersect the granted token scopes before the UserInfo endpoint is called
// (default: ["openid"]).  An empty set means the endpoint is always called.
func WithUserInfoRequiredScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*registrationOptions); ok {
			o.withUserInfoRequiredScopes = scopes
		}
	}
}

// WithUserInfoMethod provides an optional HTTP method (GET or POST) for the
// UserInfo request (default: GET)
func WithUserInfoMethod(m string) Option {
	return func(o interface{}) {
		if o, ok := o.(*registrationOptions); ok {
			o.withUserInfoMethod = m
		}
	}
}

// WithAuthURLStrategy provides an optional named AuthURLBuilder strategy for
// a registration (default: DefaultAuthURLStrategy)
func WithAuthURLStrategy(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*registrationOptions); ok {
			o.withAuthURLStrategy = name
		}
	}
}

// WithProviderCA provides an optional CA cert PEM for a registration
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*registrationOptions); ok {
			o.withProviderCA = cert
		}
	}
}
