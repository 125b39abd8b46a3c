package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tanviriss/MockMate/pkg/config"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid authentication token")
)

// UserLocalsKey is the fiber locals key holding the verified User of a
// request.
const UserLocalsKey = "user"

type Provider string

const (
	ProviderSupabase Provider = "supabase"
	ProviderClerk    Provider = "clerk"
)

// User is the authenticated identity every provider is normalised into.
type User struct {
	ID       string
	Email    string
	Provider Provider
}

type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

func NewVerifier(cfg config.AuthConfig) (Verifier, error) {
	switch Provider(cfg.Provider) {
	case ProviderSupabase:
		return NewSupabaseVerifier(cfg.JWTSecret, cfg.Audience), nil
	case ProviderClerk:
		return NewClerkVerifier(cfg.ClerkPublicKey, cfg.ClerkIssuer)
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}

// ExtractToken prefers a bearer Authorization header and falls back to the
// token query parameter, which browsers must use for websocket upgrades.
func ExtractToken(authHeader, queryToken string) (string, error) {
	if authHeader != "" {
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			return "", ErrMissingToken
		}
		return token, nil
	}

	if token := strings.TrimSpace(queryToken); token != "" {
		return token, nil
	}

	return "", ErrMissingToken
}

type supabaseClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type SupabaseVerifier struct {
	secret   []byte
	audience string
}

func NewSupabaseVerifier(secret, audience string) *SupabaseVerifier {
	return &SupabaseVerifier{secret: []byte(secret), audience: audience}
}

func (v *SupabaseVerifier) Verify(_ context.Context, tokenStr string) (User, error) {
	if tokenStr == "" {
		return User{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims supabaseClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return normalise(ProviderSupabase, claims.Subject, claims.Email)
}

type clerkClaims struct {
	Email               string `json:"email"`
	PrimaryEmailAddress string `json:"primary_email_address"`
	jwt.RegisteredClaims
}

type ClerkVerifier struct {
	key    *rsa.PublicKey
	issuer string
}

func NewClerkVerifier(publicKeyPEM, issuer string) (*ClerkVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse clerk public key: %w", err)
	}
	return &ClerkVerifier{key: key, issuer: issuer}, nil
}

func (v *ClerkVerifier) Verify(_ context.Context, tokenStr string) (User, error) {
	if tokenStr == "" {
		return User{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims clerkClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	email := claims.Email
	if email == "" {
		email = claims.PrimaryEmailAddress
	}
	return normalise(ProviderClerk, claims.Subject, email)
}

func normalise(p Provider, subject, email string) (User, error) {
	if subject == "" {
		return User{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	return User{ID: subject, Email: email, Provider: p}, nil
}
