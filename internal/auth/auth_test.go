package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository/memstore"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

var tech = domain.Identity{ID: "t-1", Name: "Bruno", Login: "bruno", Role: domain.RoleTechnician}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expires, err := tm.GenerateToken(tech)
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	identity, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, tech, identity)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpiredAndUnknownRole(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := tm.GenerateToken(tech)
	require.NoError(t, err)
	_, err = NewTokenManager("secret", 1).ParseToken(expired)
	assert.Error(t, err)

	bogus, _, err := NewTokenManager("secret", 1).GenerateToken(domain.Identity{ID: "x", Role: domain.RoleSystem})
	require.NoError(t, err)
	_, err = NewTokenManager("secret", 1).ParseToken(bogus)
	assert.Error(t, err)
}

func newApp(mw *AuthMiddleware, extra ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	handlers := append([]fiber.Handler{mw.Handle}, extra...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		id, _ := IdentityFromContext(c)
		return c.SendString(id.ID)
	})
	app.Get("/me", handlers...)
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	staff := memstore.NewStaffStore(domain.StaffMember{
		Person:  domain.Person{ID: "t-2", Login: "blocked", Role: domain.RoleTechnician},
		Blocked: true,
	})
	app := newApp(NewAuthMiddleware(tm, staff), RequireStaff())

	good, _, _ := tm.GenerateToken(tech)
	blocked, _, _ := tm.GenerateToken(domain.Identity{ID: "t-2", Login: "blocked", Role: domain.RoleTechnician})
	user, _, _ := tm.GenerateToken(domain.Identity{ID: "u-1", Login: "ana", Role: domain.RoleRequester})

	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/me", "", fiber.StatusUnauthorized},
		{"malformed", "/me", "Token abc", fiber.StatusUnauthorized},
		{"garbage", "/me", "Bearer abc", fiber.StatusUnauthorized},
		{"header", "/me", "Bearer " + good, fiber.StatusOK},
		{"query", "/me?access_token=" + good, "", fiber.StatusOK},
		{"blocked", "/me", "Bearer " + blocked, fiber.StatusForbidden},
		{"requester on staff route", "/me", "Bearer " + user, fiber.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
