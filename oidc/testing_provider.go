package oidc

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openrp/openrp/oidc/internal/strutils"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local server that stands in for a real OAuth2/OIDC
// provider, which makes writing tests for the authorization code flow much
// easier.  It serves an authorization endpoint (/auth), a token endpoint
// (/token) and a UserInfo endpoint (/userinfo), with knobs to force the
// failure modes a relying party has to classify.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	expectedAuthCode    string
	expectedAuthNonce   string
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	replyScopes         string
	userinfoSubject     string
	customClaims        map[string]interface{}
	omitIDToken         bool
	disableUserInfo     bool
	userinfoStatus      int
	malformedUserinfo   bool
	tokenErrorStatus    int
	tokenErrorCode      string

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// StartTestProvider creates and starts a disposable TestProvider over TLS.
// Its CACert() must be trusted by registrations talking to it (see
// TestRegistration).
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t: t,
		allowedRedirectURIs: []string{
			"https://example.com/callback",
		},
		replySubject: "alice@example.com",
		replyUserinfo: map[string]interface{}{
			"color":       "red",
			"temperature": "76",
			"flavor":      "umami",
		},
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(ioutil.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /auth and the
// allowed auth code for /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce echoed into issued ID Tokens.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs
// for the OIDC workflow. If not configured a sample of
// "https://example.com/callback" is used.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetReplySubject configures the sub claim of issued ID Tokens and, unless
// overridden with SetUserinfoSubject, of UserInfo responses.
func (p *TestProvider) SetReplySubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetReplyUserinfo configures the additional claims returned by /userinfo.
func (p *TestProvider) SetReplyUserinfo(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = claims
}

// SetReplyScopes configures the scope value returned by /token (space
// separated).  When empty, no scope parameter is returned.
func (p *TestProvider) SetReplyScopes(scopes string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyScopes = scopes
}

// SetUserinfoSubject overrides the sub claim returned by /userinfo, letting
// tests force a subject mismatch against the ID Token.
func (p *TestProvider) SetUserinfoSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userinfoSubject = sub
}

// SetCustomClaims lets you set claims to return in the JWT issued by the
// OIDC workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// OmitIDTokens forces an error state where the /token endpoint does not
// return id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// DisableUserInfo makes the userinfo endpoint return 404.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// SetUserinfoStatus forces /userinfo to reply with the given HTTP status and
// no usable body.
func (p *TestProvider) SetUserinfoStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userinfoStatus = status
}

// MalformUserinfo forces /userinfo to reply with truncated JSON.
func (p *TestProvider) MalformUserinfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.malformedUserinfo = true
}

// SetTokenError forces /token to reply with the given HTTP status and OAuth2
// error code.
func (p *TestProvider) SetTokenError(status int, errorCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenErrorStatus = status
	p.tokenErrorCode = errorCode
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// clientAuthenticated verifies the client credentials arrived via basic auth
// or form parameters.
func (p *TestProvider) clientAuthenticated(req *http.Request) bool {
	if p.clientSecret == "" {
		return true
	}
	if id, secret, ok := req.BasicAuth(); ok {
		return id == p.clientID && secret == p.clientSecret
	}
	return req.FormValue("client_id") == p.clientID && req.FormValue("client_secret") == p.clientSecret
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/auth":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()

		if qv.Get("response_type") != "code" {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}

		if p.expectedAuthCode == "" {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}

		state := qv.Get("state")
		if state == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}

		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing redirect_uri parameter")
			return
		}

		redirectURI += "?state=" + url.QueryEscape(state) +
			"&code=" + url.QueryEscape(p.expectedAuthCode)

		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/token":
		if req.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if p.tokenErrorStatus != 0 {
			_ = p.writeTokenErrorResponse(w, p.tokenErrorStatus, p.tokenErrorCode, "forced error")
			return
		}

		switch {
		case req.FormValue("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case !strutils.StrListContains(p.allowedRedirectURIs, req.FormValue("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case !p.clientAuthenticated(req):
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		case req.FormValue("code") != p.expectedAuthCode:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
			return
		}

		stdClaims := jwt.Claims{
			Subject:   p.replySubject,
			Issuer:    p.Addr(),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-5 * time.Second)),
			Expiry:    jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			Audience:  jwt.Audience{p.clientID},
		}
		privateClaims := map[string]interface{}{}
		if p.expectedAuthNonce != "" {
			privateClaims["nonce"] = p.expectedAuthNonce
		}
		for k, v := range p.customClaims {
			privateClaims[k] = v
		}

		jwtData := TestSignJWT(p.t, p.ecdsaPrivateKey, stdClaims, privateClaims)

		reply := struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int    `json:"expires_in"`
			IDToken     string `json:"id_token,omitempty"`
			Scope       string `json:"scope,omitempty"`
		}{
			AccessToken: "test-access-token-" + p.expectedAuthCode,
			TokenType:   "Bearer",
			ExpiresIn:   3600,
			IDToken:     jwtData,
			Scope:       p.replyScopes,
		}
		if p.omitIDToken {
			reply.IDToken = ""
		}
		if err := p.writeJSON(w, &reply); err != nil {
			return
		}

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if p.userinfoStatus != 0 {
			w.WriteHeader(p.userinfoStatus)
			return
		}
		if !strings.HasPrefix(req.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if p.malformedUserinfo {
			_, _ = w.Write([]byte(`{"sub": "` + p.replySubject + `"`))
			return
		}

		sub := p.userinfoSubject
		if sub == "" {
			sub = p.replySubject
		}
		reply := map[string]interface{}{
			"sub": sub,
		}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		if err := p.writeJSON(w, reply); err != nil {
			return
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// TestRegistration creates a Registration wired to the TestProvider: its
// endpoints, CA cert and client creds.  Additional NewRegistration options
// may be passed and will override the defaults here.
func TestRegistration(t *testing.T, tp *TestProvider, clientID, clientSecret, redirectURL string, opt ...Option) *Registration {
	t.Helper()
	require := require.New(t)
	require.NotEmpty(clientID)
	require.NotEmpty(redirectURL)

	tp.SetClientCreds(clientID, clientSecret)
	opts := []Option{
		WithUserInfoEndpoint(tp.Addr() + "/userinfo"),
		WithProviderCA(tp.CACert()),
	}
	opts = append(opts, opt...)
	r, err := NewRegistration(
		"test-provider",
		clientID,
		ClientSecret(clientSecret),
		tp.Addr()+"/auth",
		tp.Addr()+"/token",
		redirectURL,
		opts...,
	)
	require.NoError(err)
	return r
}
