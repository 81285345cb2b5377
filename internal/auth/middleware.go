package auth

import (
	"net/http"
	"strings"

	"ctchen222/hotseat-tictactoe/internal/api/response"

	"github.com/gin-gonic/gin"
)

// ContextSessionKey holds the verified session id in the gin context.
const ContextSessionKey = "session_id"

// Middleware requires "Authorization: Bearer <token>" issued for the session
// named by the route parameter param.
func Middleware(issuer *Issuer, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || tokenString == "" {
			response.ErrorResponse(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}

		sessionID := c.Param(param)
		if err := issuer.VerifyFor(tokenString, sessionID); err != nil {
			response.ErrorResponse(c, http.StatusUnauthorized, err.Error())
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, sessionID)
		c.Next()
	}
}
