package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanviriss/MockMate/pkg/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestExtractToken(t *testing.T) {
	tok, err := ExtractToken("Bearer abc", "")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	tok, err = ExtractToken("", "from-query")
	require.NoError(t, err)
	assert.Equal(t, "from-query", tok)

	_, err = ExtractToken("Token abc", "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = ExtractToken("Bearer ", "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = ExtractToken("", "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestSupabaseVerifier(t *testing.T) {
	v := NewSupabaseVerifier(testSecret, "authenticated")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("valid token", func(t *testing.T) {
		tok := signHS256(t, testSecret, jwt.MapClaims{
			"sub": "user-1", "email": "a@example.com", "aud": "authenticated", "exp": exp,
		})
		user, err := v.Verify(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, User{ID: "user-1", Email: "a@example.com", Provider: ProviderSupabase}, user)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok := signHS256(t, "another-secret-another-secret-xx", jwt.MapClaims{
			"sub": "user-1", "aud": "authenticated", "exp": exp,
		})
		_, err := v.Verify(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		tok := signHS256(t, testSecret, jwt.MapClaims{
			"sub": "user-1", "aud": "authenticated", "exp": time.Now().Add(-time.Minute).Unix(),
		})
		_, err := v.Verify(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		tok := signHS256(t, testSecret, jwt.MapClaims{"sub": "user-1", "aud": "anon", "exp": exp})
		_, err := v.Verify(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		tok := signHS256(t, testSecret, jwt.MapClaims{"aud": "authenticated", "exp": exp})
		_, err := v.Verify(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := v.Verify(ctx, "")
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestClerkVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	v, err := NewClerkVerifier(pemKey, "https://clerk.example.com")
	require.NoError(t, err)

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()

	user, err := v.Verify(context.Background(), sign(jwt.MapClaims{
		"sub": "user_2x", "primary_email_address": "c@example.com",
		"iss": "https://clerk.example.com", "exp": exp,
	}))
	require.NoError(t, err)
	assert.Equal(t, User{ID: "user_2x", Email: "c@example.com", Provider: ProviderClerk}, user)

	_, err = v.Verify(context.Background(), sign(jwt.MapClaims{
		"sub": "user_2x", "iss": "https://evil.example.com", "exp": exp,
	}))
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs := signHS256(t, testSecret, jwt.MapClaims{"sub": "user_2x", "iss": "https://clerk.example.com", "exp": exp})
	_, err = v.Verify(context.Background(), hs)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(config.AuthConfig{Provider: "supabase", JWTSecret: testSecret})
	require.NoError(t, err)
	assert.IsType(t, &SupabaseVerifier{}, v)

	_, err = NewVerifier(config.AuthConfig{Provider: "clerk", ClerkPublicKey: "not a pem"})
	assert.Error(t, err)

	_, err = NewVerifier(config.AuthConfig{Provider: "okta"})
	assert.Error(t, err)
}
