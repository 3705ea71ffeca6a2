package oidc

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistration(t *testing.T, opt ...Option) *Registration {
	t.Helper()
	require := require.New(t)
	r, err := NewRegistration("test-provider", "client-id", "client-secret",
		"https://example.com/auth", "https://example.com/token",
		"https://rp.example.com/callback/{registrationId}", opt...)
	require.NoError(err)
	return r
}

func TestNewRequest(t *testing.T) {
	t.Parallel()
	skew := 250 * time.Millisecond
	defaultExpireIn := 1 * time.Minute
	testNow := func() time.Time {
		return time.Now().Add(-1 * time.Minute)
	}
	tests := []struct {
		name      string
		reg       *Registration
		opts      []Option
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "valid-no-opt",
			reg:  testRegistration(t),
			opts: []Option{WithExpiresIn(defaultExpireIn)},
		},
		{
			name: "valid-WithNow",
			reg:  testRegistration(t),
			opts: []Option{WithExpiresIn(defaultExpireIn), WithNow(testNow)},
		},
		{
			name:      "nil-registration",
			reg:       nil,
			wantErr:   true,
			wantIsErr: ErrNilParameter,
		},
		{
			name:      "zero-expiresIn",
			reg:       testRegistration(t),
			opts:      []Option{WithExpiresIn(0)},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewRequest(tt.reg, tt.opts...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			tExp := got.now().Add(defaultExpireIn)
			assert.True(got.expiration.Before(tExp.Add(skew)))
			assert.True(got.expiration.After(tExp.Add(-skew)))
			assert.NotEqualf(got.State(), got.Nonce(), "%s state should not equal %s nonce", got.State(), got.Nonce())
			assert.NotEmpty(got.State())
			assert.NotEmpty(got.Nonce())
			assert.Equal("test-provider", got.RegistrationID())
			assert.Equal([]string{"openid"}, got.Scopes())
			assert.Equal("https://rp.example.com/callback/test-provider", got.RedirectURL())
		})
	}
}

func TestNewRequest_authorizationURL(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	r := testRegistration(t, WithScopes("openid", "email"))
	req, err := NewRequest(r)
	require.NoError(err)

	u, err := url.Parse(req.AuthorizationURL())
	require.NoError(err)
	assert.Equal("https", u.Scheme)
	assert.Equal("example.com", u.Host)
	assert.Equal("/auth", u.Path)

	q := u.Query()
	assert.Equal("code", q.Get("response_type"))
	assert.Equal("client-id", q.Get("client_id"))
	assert.Equal(req.State(), q.Get("state"))
	assert.Equal(req.Nonce(), q.Get("nonce"))
	assert.Equal("openid email", q.Get("scope"))
	assert.Equal("https://rp.example.com/callback/test-provider", q.Get("redirect_uri"))
}

func TestNewRequest_customBuilder(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	custom := func(r *Registration, req *Request) (string, error) {
		return r.AuthorizationEndpoint + "?custom=1&state=" + req.State(), nil
	}
	req, err := NewRequest(testRegistration(t), WithAuthURLBuilder(custom))
	require.NoError(err)
	assert.Contains(req.AuthorizationURL(), "custom=1")
	assert.Contains(req.AuthorizationURL(), req.State())
}

func TestRequest_IsExpired(t *testing.T) {
	t.Parallel()
	t.Run("not-expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRequest(testRegistration(t), WithExpiresIn(2*time.Minute))
		require.NoError(err)
		assert.False(r.IsExpired())
	})
	t.Run("expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRequest(testRegistration(t), WithExpiresIn(1*time.Nanosecond))
		require.NoError(err)
		assert.True(r.IsExpired())
	})
}
