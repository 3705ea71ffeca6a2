// Package callback provides an http.HandlerFunc for the callback leg of the
// OAuth2 authorization code flow: it parses the provider's redirect back
// into an authorization response, correlates it against the stored request,
// exchanges the code for tokens and resolves the authenticated identity.
//
// Producing the success/error HTTP responses is left to caller-supplied
// response functions, and extracting the interaction context key (session
// id, cookie, etc) from the request is left to a caller-supplied key
// function; the package has no opinion about session mechanics.
package callback
