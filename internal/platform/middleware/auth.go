package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const userIDKey = "user_id"

// DevUserID is the caller identity used in development when no signing secret is set.
var DevUserID = uuid.MustParse("00000000-0000-4000-8000-000000000001")

type AuthConfig struct {
	// Secret verifies HS256 bearer tokens. The subject claim carries the user id.
	Secret string
	// AllowDevIdentity lets unauthenticated requests through as DevUserID when Secret
	// is empty.
	AllowDevIdentity bool
}

// Auth resolves the caller from an "Authorization: Bearer" token.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Secret == "" {
			if cfg.AllowDevIdentity {
				c.Set(userIDKey, DevUserID)
				c.Next()
				return
			}
			abortUnauthorized(c, "authentication is not configured")
			return
		}

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "missing token")
			return
		}
		userID, err := ParseToken(raw, cfg.Secret)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// ParseToken verifies an HS256 token and returns its subject as a user id.
func ParseToken(raw, secret string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, errors.New("token is not valid")
	}
	return uuid.Parse(claims.Subject)
}

// UserID returns the caller set by Auth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return raw, raw != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":     "unauthorized",
		"message":   message,
		"requestId": GetRequestID(c),
	})
}
