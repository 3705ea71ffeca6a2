/*
oidc is a package for relying parties implementing the OAuth 2.0
Authorization Code Grant and its OpenID Connect extension.

Primary types provided by the package

* Registration: the static descriptor of one OAuth2/OIDC provider (client
id/secret, endpoints, redirect URL, scopes, client auth method, username
attribute).  Created once at configuration time and shared read-only by all
flow instances.

* Request: represents one pending authorization attempt.  It contains the
unguessable state value used to correlate the provider's asynchronous
callback with the attempt that produced it, and an expiration so abandoned
attempts don't accumulate.

* RequestStore / MemoryStore: keyed storage for in-flight Requests, scoped
to a caller-supplied context key (session id, cookie id, etc).  Remove is an
atomic check-and-delete, so a replayed callback can only be correlated once.

* Correlator / AuthorizationExchange: matches an inbound callback response
to its stored Request via the state parameter, yielding either a validated
exchange pair or a classified failure (ErrRequestNotFound, ErrStateMismatch,
*ProviderError).

* TokenExchanger: exchanges an authorization code for a TokenResponse at the
provider's token endpoint, classifying failures as *TokenEndpointError or
*TransportError.

* IdentityResolver / Identity: resolves the authenticated user's identity
from ID Token claims and (when configured and warranted by the granted
scopes) the provider's UserInfo endpoint, cross-checking that both sources
agree on the subject.

* Flow: ties the pieces together: Begin builds and stores a Request and
returns the authorization URL; Finish turns a callback response into an
Authentication or a classified error.

The oidc.callback package

The callback package includes the ability to create an http.HandlerFunc
which can be used for the callback leg of the flow, where the authorization
code is exchanged for tokens and the user's identity is resolved.
*/
package oidc
