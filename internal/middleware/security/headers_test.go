package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConnectSrc(t *testing.T) {
	got := buildConnectSrc([]string{"https://app.example.com/", "http://localhost:3000", "*", ""})
	assert.Equal(t, "https://app.example.com wss://app.example.com http://localhost:3000 ws://localhost:3000", got)
	assert.Empty(t, buildConnectSrc(nil))
}

func TestHeadersMiddleware(t *testing.T) {
	for _, dev := range []bool{true, false} {
		app := fiber.New()
		app.Use(HeadersMiddleware(HeadersConfig{AllowedOrigins: []string{"https://app.example.com"}, IsDevelopment: dev}))
		app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)

		assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "wss://app.example.com")
		assert.Equal(t, !dev, resp.Header.Get("Strict-Transport-Security") != "")
	}
}
