package callback

import (
	"net/http"

	"github.com/openrp/openrp/oidc"
)

// ContextKeyFunc extracts the interaction context key (a session id, cookie
// id, etc) from the inbound callback request.  The same key must have been
// used when the flow was begun, since pending authorization requests are
// scoped to it.
type ContextKeyFunc func(req *http.Request) (string, error)

// SuccessResponseFunc is used to create an http response when the callback
// is successful.
//
// The function state parameter will contain the state that was returned as
// part of a successful authorization response, and the oidc.Authentication
// is the fully resolved principal.  The function should use the
// http.ResponseWriter to send back whatever content (headers, html, JSON,
// etc) it wishes to the client that originated the flow.
type SuccessResponseFunc func(state string, a *oidc.Authentication, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used to create an http response when the callback
// fails.
//
// The function receives the state returned as part of the authorization
// response and the classified error raised while processing the callback
// (see the oidc package error types; oidc.SecurityError distinguishes
// failures worth alerting on).  The function should use the
// http.ResponseWriter to send back whatever content it wishes to the client
// that originated the flow.
type ErrorResponseFunc func(state string, e error, w http.ResponseWriter, req *http.Request)
