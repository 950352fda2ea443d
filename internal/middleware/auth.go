package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/pkg/httputil"
)

// Context keys set by Authenticate.
const (
	ContextCallerID   = "caller_id"
	ContextCallerType = "caller_type"
)

// AuthMiddleware validates the identity token issued by the identity
// collaborator and exposes the caller's internal id to handlers.
type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

type identityClaims struct {
	UserID   int64  `json:"user_id"`
	UserType string `json:"user_type"`
	jwt.RegisteredClaims
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.Response{
		Success: false,
		Error:   &httputil.Error{Code: http.StatusUnauthorized, Message: message},
	})
}

// Authenticate verifies the bearer token and sets caller identity in
// context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "invalid authorization format")
			return
		}

		claims := &identityClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid || claims.UserID <= 0 {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(ContextCallerID, claims.UserID)
		c.Set(ContextCallerType, model.UserType(claims.UserType))
		c.Next()
	}
}

// CallerID reads the authenticated caller's internal id from context.
func CallerID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextCallerID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// CallerType reads the authenticated caller's user type from context.
func CallerType(c *gin.Context) (model.UserType, bool) {
	v, ok := c.Get(ContextCallerType)
	if !ok {
		return "", false
	}
	t, ok := v.(model.UserType)
	return t, ok
}
