package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mahalle/mahalle-api/internal/apperr"
	"github.com/mahalle/mahalle-api/internal/guard"
	"github.com/mahalle/mahalle-api/internal/permission"
)

const principalKey = "principal"

// ErrMissingBearer is returned when the Authorization header carries no bearer token.
var ErrMissingBearer = apperr.New(apperr.KindUnauthenticated, "missing bearer token")

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) (string, error) {
	authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return "", ErrMissingBearer
	}
	tok := strings.TrimSpace(authz[len("bearer "):])
	if tok == "" {
		return "", ErrMissingBearer
	}
	return tok, nil
}

// Authenticate resolves the bearer access token to a live principal and stores it on the context.
func Authenticate(g *guard.Guard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok, err := BearerToken(c)
		if err != nil {
			return err
		}
		p, err := g.Authenticate(c.UserContext(), tok)
		if err != nil {
			return err
		}
		c.Locals(principalKey, p)
		return c.Next()
	}
}

// RequirePermission admits the authenticated principal only if it may perform action in module.
// It must run after Authenticate. An unknown action panics at wiring time.
func RequirePermission(g *guard.Guard, module string, action permission.Action) fiber.Handler {
	if !action.Valid() {
		panic(fmt.Sprintf("middleware: unknown permission action %q", action))
	}
	return func(c *fiber.Ctx) error {
		p, ok := CurrentPrincipal(c)
		if !ok {
			return ErrMissingBearer
		}
		if err := g.Authorize(c.UserContext(), p, module, action); err != nil {
			return err
		}
		return c.Next()
	}
}

// CurrentPrincipal returns the principal stored by Authenticate.
func CurrentPrincipal(c *fiber.Ctx) (guard.Principal, bool) {
	p, ok := c.Locals(principalKey).(guard.Principal)
	return p, ok
}
