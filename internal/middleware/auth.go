package middleware

import (
	"net/http"
	"strings"
	"turn-service/pkg/jwtutil"
	"turn-service/pkg/logger"
	"turn-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const claimsKey = "claims"

// Auth validates bearer tokens for operator and admin routes
type Auth struct {
	jwt *jwtutil.JWTUtil
}

// NewAuth creates the auth middleware set
func NewAuth(j *jwtutil.JWTUtil) *Auth {
	return &Auth{jwt: j}
}

// RequireOperator admits tokens issued for the organization named by the
// orgParam path parameter, and admin tokens.
func (a *Auth) RequireOperator(orgParam string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, resp := a.authenticate(c)
			if claims == nil {
				return resp
			}

			orgID := c.Param(orgParam)
			if !claims.IsAdmin() && claims.OrganizationID != orgID {
				prometheus.RecordAuthFailure("forbidden")
				logger.FromEcho(c).Warn("Token not valid for organization",
					zap.String("organization_id", orgID),
					zap.String("token_organization_id", claims.OrganizationID),
					zap.String("email", claims.Email))
				return c.JSON(http.StatusForbidden, echo.Map{"error": "token is not valid for this organization"})
			}
			return next(c)
		}
	}
}

// RequireAdmin admits only tokens with the admin role
func (a *Auth) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, resp := a.authenticate(c)
			if claims == nil {
				return resp
			}
			if !claims.IsAdmin() {
				prometheus.RecordAuthFailure("forbidden")
				logger.FromEcho(c).Warn("Admin role required", zap.String("email", claims.Email))
				return c.JSON(http.StatusForbidden, echo.Map{"error": "admin role required"})
			}
			return next(c)
		}
	}
}

// authenticate parses the bearer token and stores its claims. On failure
// the claims are nil and the 401 response has been written.
func (a *Auth) authenticate(c echo.Context) (*jwtutil.UserClaims, error) {
	log := logger.FromEcho(c)

	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		prometheus.RecordAuthFailure("missing_token")
		log.Warn("Missing Authorization header")
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		prometheus.RecordAuthFailure("bad_format")
		log.Warn("Invalid Authorization header format")
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
	}

	claims, err := a.jwt.ValidateToken(parts[1])
	if err != nil {
		prometheus.RecordAuthFailure("invalid_token")
		log.Warn("Invalid JWT token", zap.Error(err))
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
	}

	c.Set(claimsKey, claims)
	c.Set("user_id", claims.UserID)
	c.Set("email", claims.Email)
	return claims, nil
}

// ClaimsFromContext returns the claims stored by an auth middleware
func ClaimsFromContext(c echo.Context) (*jwtutil.UserClaims, bool) {
	claims, ok := c.Get(claimsKey).(*jwtutil.UserClaims)
	return claims, ok
}
