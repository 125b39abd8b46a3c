package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

// HeadersMiddleware sets response hardening headers. The API serves JSON
// and one websocket endpoint, so the CSP only has to permit connections
// back to the configured frontends.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := "default-src 'none'; " +
		"connect-src 'self' " + buildConnectSrc(cfg.AllowedOrigins) + "; " +
		"frame-ancestors 'none'; " +
		"base-uri 'none'; " +
		"form-action 'none'"

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Cache-Control", "no-store")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Set("Content-Security-Policy", csp)

		return c.Next()
	}
}

// buildConnectSrc lists each origin together with its websocket scheme.
func buildConnectSrc(origins []string) string {
	var b strings.Builder
	for _, origin := range origins {
		origin = strings.TrimRight(origin, "/")
		if origin == "" || origin == "*" {
			continue
		}
		b.WriteString(origin)
		b.WriteByte(' ')

		switch {
		case strings.HasPrefix(origin, "https://"):
			b.WriteString("wss://" + strings.TrimPrefix(origin, "https://") + " ")
		case strings.HasPrefix(origin, "http://"):
			b.WriteString("ws://" + strings.TrimPrefix(origin, "http://") + " ")
		}
	}
	return strings.TrimSpace(b.String())
}
