package middleware

import (
	"net/http"
	"strings"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/auth"
	"merchantcrm/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "crm_session"

const (
	userKey    = "user"
	sessionKey = "session"
)

func tokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// SessionAuth rejects requests without a live session. Failures to load the
// session are reported as 500.
func SessionAuth(svc *auth.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, session, err := svc.Authenticate(c.Request.Context(), tokenFrom(c))
		if err != nil {
			if apperr.KindOf(err) != apperr.Unauthorized {
				logger.Error("session lookup failed", zap.String("path", c.FullPath()), zap.Error(err))
				c.AbortWithStatusJSON(apperr.StatusOf(err), gin.H{"success": false, "message": "Something went wrong, please try again"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authentication required"})
			return
		}

		c.Set(userKey, user)
		c.Set(sessionKey, session)
		c.Next()
	}
}

// RequireRoles allows only the listed roles through.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authentication required"})
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "You do not have access to this resource"})
	}
}

func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

func CurrentSession(c *gin.Context) *models.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*models.Session); ok {
			return s
		}
	}
	return nil
}
