package oidc

import "net/url"

// AuthorizationResponse is the payload the provider delivers on the callback
// redirect: either an authorization code with the echoed state, or an OAuth2
// error.  It is ephemeral and only used during correlation.
type AuthorizationResponse struct {
	// Code is the authorization code on a success response
	Code string

	// State is the echoed state parameter
	State string

	// Error is the OAuth2 error code on an error response (for example
	// "access_denied")
	Error string

	// ErrorDescription is the optional error_description
	ErrorDescription string

	// ErrorURI is the optional error_uri
	ErrorURI string
}

// IsError reports whether the response carries a provider error rather than
// an authorization code.
func (r *AuthorizationResponse) IsError() bool {
	return r.Error != ""
}

// AuthorizationResponseFromValues builds an AuthorizationResponse from parsed
// callback query (or form) parameters.  Producing/parsing the raw HTTP
// request is the caller's job.
func AuthorizationResponseFromValues(v url.Values) *AuthorizationResponse {
	return &AuthorizationResponse{
		Code:             v.Get("code"),
		State:            v.Get("state"),
		Error:            v.Get("error"),
		ErrorDescription: v.Get("error_description"),
		ErrorURI:         v.Get("error_uri"),
	}
}
