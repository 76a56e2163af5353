package middleware

import (
	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/chanwatch/internal/model"
)

// ValidateChannelName normalizes a channel name and checks its form.
// It returns the normalized name or a user-facing message.
func ValidateChannelName(name string) (string, string) {
	normalized, err := model.NormalizeChannel(name)
	if err != nil {
		return "", err.Error()
	}
	return normalized, ""
}

// TextError writes a plain-text error reply with the given status.
func TextError(c fiber.Ctx, status int, message string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(status).SendString(message)
}

// RequireChannelParam rejects requests whose :channel parameter is malformed
// and stores the normalized name in Locals("channel").
func RequireChannelParam() fiber.Handler {
	return func(c fiber.Ctx) error {
		name, msg := ValidateChannelName(c.Params("channel"))
		if msg != "" {
			return TextError(c, fiber.StatusBadRequest, msg)
		}
		c.Locals("channel", name)
		return c.Next()
	}
}
