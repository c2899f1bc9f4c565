package user

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

var ErrNotFound = errors.New("user not found")

// Roles carried in the JWT issued by the auth service.
const (
	RoleCustomer  = "customer"
	RoleShopOwner = "shop_owner"
	RoleAdmin     = "admin"
)

// User is the slice of the account record this service cares about.
// Authentication and profile management live in the auth service; we only
// consume its JWT claims.
type User struct {
	ID    int    `json:"userId"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// GetUserIDFromCtx extracts the authenticated user id from the JWT token the
// jwtware middleware stored in Locals.
func GetUserIDFromCtx(c *fiber.Ctx) (int, error) {
	claims, err := claimsFromCtx(c)
	if err != nil {
		return 0, err
	}
	if raw, ok := claims["user_id"]; ok {
		switch v := raw.(type) {
		case float64:
			return int(v), nil
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case string:
			id, err := strconv.Atoi(v)
			if err != nil {
				return 0, fiber.ErrUnauthorized
			}
			return id, nil
		}
	}
	return 0, fiber.ErrUnauthorized
}

// GetRoleFromCtx extracts the role claim; a missing role defaults to customer.
func GetRoleFromCtx(c *fiber.Ctx) (string, error) {
	claims, err := claimsFromCtx(c)
	if err != nil {
		return "", err
	}
	if raw, ok := claims["role"]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return s, nil
		}
	}
	return RoleCustomer, nil
}

func claimsFromCtx(c *fiber.Ctx) (jwt.MapClaims, error) {
	u := c.Locals("user")
	if u == nil {
		return nil, fiber.ErrUnauthorized
	}
	tok, ok := u.(*jwt.Token)
	if !ok {
		return nil, fiber.ErrUnauthorized
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fiber.ErrUnauthorized
	}
	return claims, nil
}
