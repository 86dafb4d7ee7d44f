package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"inboxt_server/pkg/apperr"
	"inboxt_server/pkg/logger"
)

// ServiceKeyHeader authenticates internal callers such as cron jobs.
const ServiceKeyHeader = "X-Service-Key"

// JWTAuth verifies HS256 access tokens issued by the auth provider and stores
// the subject as "user_id" (uuid.UUID) in the request locals.
func JWTAuth(secret string) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}
		if len(key) == 0 {
			return apperr.Internal("JWT secret not configured")
		}

		claims := jwt.MapClaims{}
		_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil {
			logger.WithError(err).Debug("jwt rejected")
			if errors.Is(err, jwt.ErrTokenExpired) {
				return apperr.Unauthorized("token expired").WithDetail("reason", "TOKEN_EXPIRED")
			}
			return apperr.Unauthorized("invalid token")
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return apperr.Unauthorized("missing user id in token")
		}
		userID, err := uuid.Parse(sub)
		if err != nil {
			return apperr.Unauthorized("invalid user id format")
		}

		c.Locals("user_id", userID)
		if email, ok := claims["email"].(string); ok {
			c.Locals("user_email", email)
		}
		return c.Next()
	}
}

// ServiceKey admits requests carrying the shared service key in X-Service-Key
// or as a bearer token.
func ServiceKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return apperr.Forbidden("service key not configured")
		}
		got := c.Get(ServiceKeyHeader)
		if got == "" {
			got = bearerToken(c.Get(fiber.HeaderAuthorization))
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return apperr.Unauthorized("invalid service key")
		}
		return c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
