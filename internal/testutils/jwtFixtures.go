package testutils

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/stretchr/testify/require"
)

// TestJWTSecret signs the tokens of SignedToken
var TestJWTSecret = []byte("test-secret-for-image-studio-tokens")

// SignedToken returns an HS256 token with the given claims, valid for one hour
// unless claims sets exp itself
func SignedToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	token := jwt.New()
	require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now()))
	require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(time.Hour)))
	for k, v := range claims {
		require.NoError(t, token.Set(k, v))
	}
	signed, err := jwt.Sign(token, jwa.HS256, TestJWTSecret)
	require.NoError(t, err)
	return string(signed)
}

// BearerHeader formats token for the Authorization header
func BearerHeader(token string) string {
	return "Bearer " + token
}
