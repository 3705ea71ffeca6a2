// openrp (open relying party) provides a collection of related packages which
// implement the client side of the OAuth 2.0 Authorization Code Grant and its
// OpenID Connect extension: building and correlating authorization requests,
// exchanging authorization codes for tokens, and resolving an authenticated
// user identity from ID Token and UserInfo claims.
//
// See README.md
package openrp
