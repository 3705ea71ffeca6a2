package oidc

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAuthorize drives the test provider's authorization endpoint the way a
// user's browser would and returns the callback parameters it redirects back
// with.
func testAuthorize(t *testing.T, r *Registration, authorizationURL string) *AuthorizationResponse {
	t.Helper()
	require := require.New(t)

	client, err := r.HTTPClient()
	require.NoError(err)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Get(authorizationURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	return AuthorizationResponseFromValues(loc.Query())
}

func TestNewFlow(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	r := testRegistration(t)
	f, err := NewFlow(NewMemoryStore(), []*Registration{r})
	require.NoError(err)
	assert.NotNil(f)

	got, err := f.Registration("test-provider")
	require.NoError(err)
	assert.Equal(r, got)

	_, err = f.Registration("unknown")
	assert.True(errors.Is(err, ErrNotFound))

	_, err = NewFlow(nil, []*Registration{r})
	assert.True(errors.Is(err, ErrNilParameter))

	_, err = NewFlow(NewMemoryStore(), nil)
	assert.True(errors.Is(err, ErrInvalidParameter))

	_, err = NewFlow(NewMemoryStore(), []*Registration{r, testRegistration(t)})
	assert.True(errors.Is(err, ErrInvalidParameter), "duplicate registration ids should be rejected")

	invalid := testRegistration(t)
	invalid.TokenEndpoint = ""
	_, err = NewFlow(NewMemoryStore(), []*Registration{invalid})
	assert.True(errors.Is(err, ErrInvalidParameter))
}

func TestFlow_Begin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stores-request", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		store := NewMemoryStore()
		f, err := NewFlow(store, []*Registration{testRegistration(t)})
		require.NoError(err)

		req, err := f.Begin(ctx, "session-1", "test-provider")
		require.NoError(err)
		assert.NotEmpty(req.AuthorizationURL())
		assert.Contains(req.AuthorizationURL(), req.State())

		stored, err := store.Remove(ctx, "session-1", req.State())
		require.NoError(err)
		require.NotNil(stored)
		assert.Equal(req.State(), stored.State())
	})
	t.Run("unknown-registration", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		f, err := NewFlow(NewMemoryStore(), []*Registration{testRegistration(t)})
		require.NoError(err)
		_, err = f.Begin(ctx, "session-1", "unknown")
		assert.True(errors.Is(err, ErrNotFound))
	})
	t.Run("unknown-strategy", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r := testRegistration(t, WithAuthURLStrategy("custom"))
		f, err := NewFlow(NewMemoryStore(), []*Registration{r})
		require.NoError(err)
		_, err = f.Begin(ctx, "session-1", "test-provider")
		assert.True(errors.Is(err, ErrNotFound))
	})
	t.Run("custom-strategy-via-registry", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		registry := NewBuilderRegistry()
		require.NoError(registry.Register("custom", func(r *Registration, req *Request) (string, error) {
			return r.AuthorizationEndpoint + "?custom=1&state=" + req.State(), nil
		}))
		r := testRegistration(t, WithAuthURLStrategy("custom"))
		f, err := NewFlow(NewMemoryStore(), []*Registration{r}, WithBuilderRegistry(registry))
		require.NoError(err)

		req, err := f.Begin(ctx, "session-1", "test-provider")
		require.NoError(err)
		assert.Contains(req.AuthorizationURL(), "custom=1")
	})
}

func TestFlow_Finish(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, opt ...Option) (*TestProvider, *Flow, *Request) {
		t.Helper()
		require := require.New(t)
		tp := StartTestProvider(t)
		tp.SetExpectedAuthCode("test-code")
		r := TestRegistration(t, tp, "client-id", "client-secret", "https://example.com/callback", opt...)
		f, err := NewFlow(NewMemoryStore(), []*Registration{r})
		require.NoError(err)
		req, err := f.Begin(ctx, "session-1", "test-provider")
		require.NoError(err)
		tp.SetExpectedAuthNonce(req.Nonce())
		return tp, f, req
	}

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, f, req := setup(t)

		r, err := f.Registration("test-provider")
		require.NoError(err)
		resp := testAuthorize(t, r, req.AuthorizationURL())
		require.False(resp.IsError())
		require.Equal(req.State(), resp.State)

		auth, err := f.Finish(ctx, "session-1", resp)
		require.NoError(err)
		require.NotNil(auth)
		assert.Equal("alice@example.com", auth.Identity().Subject)
		assert.Equal("alice@example.com", auth.Name())
		assert.Equal("red", auth.Identity().Claims["color"], "userinfo claims should be merged in")
		assert.Equal(req.Nonce(), auth.Identity().Claims["nonce"])
		assert.True(auth.Token().Valid())
		assert.NotEmpty(auth.Token().IdToken)
	})
	t.Run("replayed-callback", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, f, req := setup(t)
		resp := &AuthorizationResponse{Code: "test-code", State: req.State()}

		_, err := f.Finish(ctx, "session-1", resp)
		require.NoError(err)

		auth, err := f.Finish(ctx, "session-1", resp)
		require.Error(err)
		assert.True(errors.Is(err, ErrRequestNotFound))
		assert.Nil(auth)
	})
	t.Run("provider-error-callback", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, f, req := setup(t)
		resp := &AuthorizationResponse{State: req.State(), Error: "access_denied"}

		auth, err := f.Finish(ctx, "session-1", resp)
		require.Error(err)
		assert.Nil(auth)
		var pErr *ProviderError
		assert.True(errors.As(err, &pErr))

		// the attempt is over; the stored request must be consumed
		_, err = f.Finish(ctx, "session-1", &AuthorizationResponse{Code: "test-code", State: req.State()})
		assert.True(errors.Is(err, ErrRequestNotFound))
	})
	t.Run("missing-id-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, f, req := setup(t)
		tp.OmitIDTokens()

		auth, err := f.Finish(ctx, "session-1", &AuthorizationResponse{Code: "test-code", State: req.State()})
		require.Error(err)
		assert.True(errors.Is(err, ErrMissingIdToken))
		assert.Nil(auth)
	})
	t.Run("plain-oauth2-without-openid", func(t *testing.T) {
		// no openid scope requested, so an omitted id_token is fine and the
		// identity comes from userinfo alone
		assert, require := assert.New(t), require.New(t)
		tp, f, req := setup(t, WithScopes("read"), WithUserInfoRequiredScopes("read"))
		tp.OmitIDTokens()

		auth, err := f.Finish(ctx, "session-1", &AuthorizationResponse{Code: "test-code", State: req.State()})
		require.NoError(err)
		assert.Equal("alice@example.com", auth.Identity().Subject)
		assert.Empty(auth.Token().IdToken)
	})
	t.Run("subject-mismatch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, f, req := setup(t)
		tp.SetUserinfoSubject("mallory@example.com")

		auth, err := f.Finish(ctx, "session-1", &AuthorizationResponse{Code: "test-code", State: req.State()})
		require.Error(err)
		assert.Nil(auth)
		var smErr *SubjectMismatchError
		assert.True(errors.As(err, &smErr))
		assert.True(SecurityError(err))
	})
	t.Run("token-endpoint-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, f, req := setup(t)
		tp.SetTokenError(503, "temporarily_unavailable")

		auth, err := f.Finish(ctx, "session-1", &AuthorizationResponse{Code: "test-code", State: req.State()})
		require.Error(err)
		assert.Nil(auth)
		var teErr *TokenEndpointError
		require.True(errors.As(err, &teErr))
		assert.Equal(503, teErr.Status)
	})
}
