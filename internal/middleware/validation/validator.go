package validation

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/auth"
)

type Config struct {
	Verifier       auth.Verifier
	MaxTokenLength int
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Handshake guards the websocket endpoint. Only authenticated upgrade
// requests from an allowed origin get through; the verified user is left
// in c.Locals(auth.UserLocalsKey).
func Handshake(cfg Config) fiber.Handler {
	if cfg.MaxTokenLength == 0 {
		cfg.MaxTokenLength = 4096
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
				"error": "Websocket upgrade required",
			})
		}

		if origin := c.Get(fiber.HeaderOrigin); origin != "" && !isAllowedOrigin(origin, cfg.AllowedOrigins) {
			cfg.Logger.Warn("Rejected websocket origin",
				zap.String("ip", c.IP()),
				zap.String("origin", origin),
			)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Origin not allowed",
			})
		}

		token, err := auth.ExtractToken(c.Get(fiber.HeaderAuthorization), c.Query("token"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		if len(token) > cfg.MaxTokenLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Token exceeds maximum length",
			})
		}

		user, err := cfg.Verifier.Verify(c.UserContext(), sanitizeString(token))
		if err != nil {
			cfg.Logger.Info("Rejected websocket token", zap.String("ip", c.IP()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authentication token",
			})
		}

		c.Locals(auth.UserLocalsKey, user)
		return c.Next()
	}
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}

func isAllowedOrigin(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimRight(a, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}
