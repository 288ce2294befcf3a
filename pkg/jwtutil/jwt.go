package jwtutil

import (
	"errors"
	"fmt"
	"time"
	"turn-service/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin may operate every organization's queues and run maintenance
const RoleAdmin = "admin"

// UserClaims represents the JWT claims of an operator or administrator
type UserClaims struct {
	Email          string `json:"email"`
	UserID         uint   `json:"user_id"`
	OrganizationID string `json:"organization_id,omitempty"`
	Role           string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the claims carry the admin role
func (c *UserClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// JWTUtil is a utility for JWT token operations
type JWTUtil struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewJWTUtil creates a new JWT utility with the given configuration
func NewJWTUtil(cfg *config.JWTConfig) *JWTUtil {
	return &JWTUtil{
		config: cfg,
		now:    time.Now,
	}
}

// GenerateToken creates a token for a user acting on one organization.
// An empty organizationID is only useful together with the admin role.
func (j *JWTUtil) GenerateToken(email string, userID uint, organizationID, role string) (string, error) {
	if j.config == nil {
		return "", errors.New("JWT configuration not provided")
	}

	now := j.now()
	claims := UserClaims{
		Email:          email,
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(j.config.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.SigningKey))
}

// ValidateToken validates and parses the JWT token
func (j *JWTUtil) ValidateToken(tokenString string) (*UserClaims, error) {
	if j.config == nil {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&UserClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return []byte(j.config.SigningKey), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
