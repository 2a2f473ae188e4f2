package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const identityKey = "auth_identity"

// AuthMiddleware validates bearer tokens and stores the caller identity.
type AuthMiddleware struct {
	tokens *TokenManager
	staff  repository.StaffRepository
}

// NewAuthMiddleware constructs middleware. staff may be nil.
func NewAuthMiddleware(tokens *TokenManager, staff repository.StaffRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := tokenFromRequest(c)
	if err != nil {
		return err
	}
	identity, err := m.Authenticate(c, token)
	if err != nil {
		return err
	}
	c.Locals(identityKey, identity)
	return c.Next()
}

// Authenticate resolves a token to an identity, refusing blocked staff.
func (m *AuthMiddleware) Authenticate(c *fiber.Ctx, token string) (domain.Identity, error) {
	identity, err := m.tokens.ParseToken(token)
	if err != nil {
		return domain.Identity{}, apperrors.NewUnauthorized("invalid token")
	}
	if identity.Role.IsStaff() && m.staff != nil {
		member, err := m.staff.GetByID(c.UserContext(), identity.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return domain.Identity{}, apperrors.MapError(err)
		case member.Blocked:
			return domain.Identity{}, apperrors.NewForbidden("account blocked")
		}
	}
	return identity, nil
}

// tokenFromRequest reads the bearer header, falling back to the
// access_token query parameter that websocket clients use.
func tokenFromRequest(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if token := c.Query("access_token"); token != "" {
			return token, nil
		}
		return "", apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return parts[1], nil
}

// IdentityFromContext retrieves the authenticated caller.
func IdentityFromContext(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(domain.Identity)
	return identity, ok
}
