package oidc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		opts       []Option
		wantPrefix string
		wantLen    int
	}{
		{
			name:    "no-prefix",
			wantLen: DefaultIDLength,
		},
		{
			name:       "with-prefix",
			opts:       []Option{WithPrefix("st")},
			wantPrefix: "st",
			wantLen:    DefaultIDLength + len("st_"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewID(tt.opts...)
			require.NoError(err)
			assert.Len(got, tt.wantLen)
			if tt.wantPrefix != "" {
				assert.Truef(strings.HasPrefix(got, tt.wantPrefix+"_"), "%s doesn't start with %s_", got, tt.wantPrefix)
			}
		})
	}
	t.Run("unique", func(t *testing.T) {
		require := require.New(t)
		first, err := NewID()
		require.NoError(err)
		second, err := NewID()
		require.NoError(err)
		require.NotEqual(first, second)
	})
}
