package validation

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanviriss/MockMate/internal/auth"
)

const secret = "0123456789abcdef0123456789abcdef"

func validToken(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user-1@example.com",
		"aud":   "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newApp() *fiber.App {
	app := fiber.New()
	app.Get("/ws", Handshake(Config{
		Verifier:       auth.NewSupabaseVerifier(secret, "authenticated"),
		MaxTokenLength: 2048,
		AllowedOrigins: []string{"http://localhost:3000"},
	}), func(c *fiber.Ctx) error {
		user := c.Locals(auth.UserLocalsKey).(auth.User)
		return c.SendString(user.ID)
	})
	return app
}

func TestHandshake(t *testing.T) {
	token := validToken(t)

	tests := []struct {
		name    string
		target  string
		upgrade bool
		headers map[string]string
		status  int
	}{
		{"plain http", "/ws?token=" + token, false, nil, fiber.StatusUpgradeRequired},
		{"missing token", "/ws", true, nil, fiber.StatusUnauthorized},
		{"oversized token", "/ws?token=" + strings.Repeat("a", 3000), true, nil, fiber.StatusBadRequest},
		{"invalid token", "/ws?token=not-a-jwt", true, nil, fiber.StatusUnauthorized},
		{"foreign origin", "/ws?token=" + token, true, map[string]string{"Origin": "https://evil.example"}, fiber.StatusForbidden},
		{"query token", "/ws?token=" + token, true, map[string]string{"Origin": "http://localhost:3000"}, fiber.StatusOK},
		{"bearer header", "/ws", true, map[string]string{"Authorization": "Bearer " + token}, fiber.StatusOK},
	}

	app := newApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.upgrade {
				req.Header.Set("Connection", "Upgrade")
				req.Header.Set("Upgrade", "websocket")
			}
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, "user-1", string(body))
			}
		})
	}
}

func TestIsAllowedOrigin(t *testing.T) {
	allowed := []string{"https://app.example.com/", "http://localhost:3000"}

	assert.True(t, isAllowedOrigin("https://app.example.com", allowed))
	assert.True(t, isAllowedOrigin("http://localhost:3000", allowed))
	assert.False(t, isAllowedOrigin("https://app.example.com.evil.io", allowed))
	assert.False(t, isAllowedOrigin("javascript:alert(1)", allowed))
	assert.True(t, isAllowedOrigin("https://anything.io", []string{"*"}))
	assert.True(t, isAllowedOrigin("https://anything.io", nil))
}
