package oidc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExchange(t *testing.T, r *Registration, code string) *AuthorizationExchange {
	t.Helper()
	require := require.New(t)
	req, err := NewRequest(r)
	require.NoError(err)
	return &AuthorizationExchange{
		request:  req,
		response: &AuthorizationResponse{Code: code, State: req.State()},
	}
}

func TestHTTPTokenExchanger_Exchange(t *testing.T) {
	ctx := context.Background()

	t.Run("success-basic-auth", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetExpectedAuthCode("test-code")
		r := TestRegistration(t, tp, "client-id", "client-secret", "https://example.com/callback")
		ex := testExchange(t, r, "test-code")

		got, err := NewHTTPTokenExchanger().Exchange(ctx, ex, r)
		require.NoError(err)
		require.NotNil(got)
		assert.Equal(AccessToken("test-access-token-test-code"), got.AccessToken)
		assert.Equal("Bearer", got.TokenType)
		assert.NotEmpty(got.IdToken)
		assert.True(got.Expiry.After(time.Now()))
		assert.True(got.Valid())
	})
	t.Run("success-post-auth", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetExpectedAuthCode("test-code")
		r := TestRegistration(t, tp, "client-id", "client-secret", "https://example.com/callback",
			WithAuthMethod(ClientSecretPost))
		ex := testExchange(t, r, "test-code")

		got, err := NewHTTPTokenExchanger().Exchange(ctx, ex, r)
		require.NoError(err)
		assert.Equal(AccessToken("test-access-token-test-code"), got.AccessToken)
	})
	t.Run("omitted-scope-means-requested", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetExpectedAuthCode("test-code")
		r := TestRegistration(t, tp, "client-id", "client-secret", "https://example.com/callback",
			WithScopes("openid", "email", "profile"))
		ex := testExchange(t, r, "test-code")

		got, err := NewHTTPTokenExchanger().Exchange(ctx, ex, r)
		require.NoError(err)
		assert.Equal([]string{"openid", "email", "profile"}, got.Scopes)
	})
	t.Run("granted-scopes-from-response", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetExpectedAuthCode("test-code")
		tp.SetReplyScopes("openid email")
		r := TestRegistration(t, tp, "client-id", "client-secret", "https://example.com/callback",
			WithScopes("openid", "email", "profile"))
		ex := testExchange(t, r, "test-code")

		got, err := NewHTTPTokenExchanger().Exchange(ctx, ex, r)
		require.NoError(err)
		assert.Equal([]string{"openid", "email"}, got.Scopes)
	})
	t.Run("token-endpoint-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetExpectedAuthCode("test-code")
		tp.SetTokenError(401, "invalid_client")
		r := TestRegistration(t, tp, "client-id", "client-secret", "https://example.com/callback")
		ex := testExchange(t, r, "test-code")

		got, err := NewHTTPTokenExchanger().Exchange(ctx, ex, r)
		require.Error(err)
		assert.Nil(got)
		var teErr *TokenEndpointError
		require.True(errors.As(err, &teErr))
		assert.Equal(401, teErr.Status)
		assert.Contains(string(teErr.Body), "invalid_client")
	})
	t.Run("rejected-code", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetExpectedAuthCode("test-code")
		r := TestRegistration(t, tp, "client-id", "client-secret", "https://example.com/callback")
		ex := testExchange(t, r, "some-other-code")

		got, err := NewHTTPTokenExchanger().Exchange(ctx, ex, r)
		require.Error(err)
		assert.Nil(got)
		var teErr *TokenEndpointError
		require.True(errors.As(err, &teErr))
		assert.Equal(401, teErr.Status)
	})
	t.Run("transport-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRegistration("test-provider", "client-id", "client-secret",
			"https://example.com/auth", "https://127.0.0.1:1/token", "https://example.com/callback")
		require.NoError(err)
		ex := testExchange(t, r, "test-code")

		got, err := NewHTTPTokenExchanger().Exchange(ctx, ex, r)
		require.Error(err)
		assert.Nil(got)
		var trErr *TransportError
		assert.True(errors.As(err, &trErr))
	})
	t.Run("validation", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r := testRegistration(t)
		e := NewHTTPTokenExchanger()

		_, err := e.Exchange(ctx, nil, r)
		assert.True(errors.Is(err, ErrNilParameter))

		ex := testExchange(t, r, "test-code")
		_, err = e.Exchange(ctx, ex, nil)
		assert.True(errors.Is(err, ErrNilParameter))

		other := testRegistration(t)
		other.ID = "other-provider"
		_, err = e.Exchange(ctx, ex, other)
		assert.True(errors.Is(err, ErrInvalidParameter))

		errEx := testExchange(t, r, "")
		errEx.response.Error = "access_denied"
		_, err = e.Exchange(ctx, errEx, r)
		assert.True(errors.Is(err, ErrInvalidParameter))

		emptyCode := testExchange(t, r, "")
		_, err = e.Exchange(ctx, emptyCode, r)
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}
