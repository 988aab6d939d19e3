package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"topup-api/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by AccountAuthMiddleware
const (
	ContextAccountID    = "account_id"
	ContextAccountEmail = "account_email"
)

var (
	ErrEmptyJWTSecret = errors.New("jwt secret cannot be empty")
	ErrInvalidToken   = errors.New("invalid token")
)

// AccountClaims are the identity provider's access token claims we rely on
type AccountClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateAccountToken verifies an HS256 access token and returns its claims
func ValidateAccountToken(tokenString, secret string) (*AccountClaims, error) {
	if secret == "" {
		return nil, ErrEmptyJWTSecret
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&AccountClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		},
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccountClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccountAuthMiddleware requires a bearer access token and stores the
// account id and email in the context
func AccountAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization header required"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(strings.TrimSpace(parts[0]), "Bearer") {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := ValidateAccountToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			message := "Invalid or malformed token"
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				message = "Token expired"
			case errors.Is(err, ErrEmptyJWTSecret):
				c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Authentication is not configured"))
				c.Abort()
				return
			}
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, message))
			c.Abort()
			return
		}

		c.Set(ContextAccountID, claims.Subject)
		c.Set(ContextAccountEmail, claims.Email)
		c.Next()
	}
}

// GetAccountID returns the authenticated account id
func GetAccountID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextAccountID)
	return id, id != ""
}
