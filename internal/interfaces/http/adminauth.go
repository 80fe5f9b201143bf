package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/soilSpoon/llmux/pkg/errors"
)

// writeAdminError renders an AppError to the admin surface's JSON envelope,
// distinct from the curated upstream-facing {error:{message,type,code?}}
// shape dispatch.writeError produces for client-facing dialect responses.
func writeAdminError(c *gin.Context, status int, err *apperrors.AppError) {
	c.AbortWithStatusJSON(status, gin.H{"code": err.Code, "message": err.Error()})
}

// adminAuth validates a Bearer JWT signed with secret before admitting a
// request to the admin surface (/providers, /status). An empty secret
// disables the guard entirely: an unset signing key means auth is not
// enforced.
func adminAuth(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) {}
	}

	key := []byte(secret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeAdminError(c, http.StatusUnauthorized, apperrors.NewInvalidInputError("missing or malformed Authorization header"))
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			writeAdminError(c, http.StatusUnauthorized, &apperrors.AppError{Code: apperrors.CodeUnauthorized, Message: "invalid or expired token", Err: err})
			return
		}

		c.Next()
	}
}
