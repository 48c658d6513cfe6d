package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	callerHeader = "X-Caller-Id"
	callerKey    = "caller-identity"
)

// CallerIdentity requires the opaque caller token the host attaches to every
// request and stashes it for handlers. The token is never interpreted, only
// compared.
func CallerIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := strings.TrimSpace(c.Get(callerHeader))
		if caller == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing X-Caller-Id header")
		}
		c.Locals(callerKey, caller)
		return c.Next()
	}
}

// CallerFrom returns the caller token stashed by CallerIdentity, or "" when
// the middleware did not run.
func CallerFrom(c *fiber.Ctx) string {
	caller, _ := c.Locals(callerKey).(string)
	return caller
}
