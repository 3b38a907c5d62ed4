package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/oarkflow/identityd/token"
)

const (
	ctxKeyClaims        = "identityd.claims"
	ctxKeyCorrelationID = "identityd.correlationId"
)

// correlationID assigns every request an id, preserving one supplied
// via X-Correlation-ID so a caller's own trace propagates end to end.
func correlationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(ctxKeyCorrelationID, id)
		c.Set("X-Correlation-ID", id)
		return c.Next()
	}
}

// bearerAuth validates the Authorization header against the token
// Service and stashes the parsed claims for handlers that require
// an authenticated subject.
func bearerAuth(svc *token.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			return writeError(c, token.BadCredentials("missing bearer token"))
		}
		claims, err := svc.Validate(strings.TrimPrefix(header, prefix))
		if err != nil {
			return writeError(c, err)
		}
		c.Locals(ctxKeyClaims, claims)
		return c.Next()
	}
}

func claimsFrom(c *fiber.Ctx) *token.Claims {
	claims, _ := c.Locals(ctxKeyClaims).(*token.Claims)
	return claims
}

func correlationIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(ctxKeyCorrelationID).(string)
	return id
}

// requireGroup is a cheap, defense-in-depth membership check ahead of
// a handler that also consults the PDP — it never substitutes for
// that evaluation, only narrows who reaches it.
func requireGroup(group string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := claimsFrom(c)
		if claims == nil {
			return writeError(c, token.BadCredentials("missing bearer token"))
		}
		for _, g := range claims.Groups {
			if g == group {
				return c.Next()
			}
		}
		return writeError(c, errForbidden)
	}
}
