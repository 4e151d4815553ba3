package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gridiron-live/broadcast/internal/auth"
	"github.com/gridiron-live/broadcast/pkg/response"
	"github.com/gridiron-live/broadcast/pkg/utils"
)

// ContextSessionCode is the gin context key holding the authorized session code.
const ContextSessionCode = "session_code"

// TokenValidator is satisfied by *auth.JWTService.
type TokenValidator interface {
	ValidateFor(token, sessionCode string) (*auth.Claims, error)
}

// BroadcasterToken requires a bearer token issued for the :code path param.
func BroadcasterToken(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := utils.NormalizeSessionCode(c.Param("code"))
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := v.ValidateFor(parts[1], code)
		if err != nil {
			if err == auth.ErrWrongSession {
				response.Forbidden(c, "token not valid for this session")
			} else {
				response.Unauthorized(c, "invalid or expired token")
			}
			c.Abort()
			return
		}
		c.Set(ContextSessionCode, claims.SessionCode)
		c.Next()
	}
}
