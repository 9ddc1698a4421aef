package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/subkit/internal/account/domain"
	obscontext "github.com/smallbiznis/subkit/internal/observability/context"
)

const (
	sessionCookieName = "_sid"
	contextSessionKey = "session"
)

// readToken returns the session token from the cookie, falling back to a
// bearer Authorization header.
func readToken(c *gin.Context) (string, bool) {
	if sid, err := c.Cookie(sessionCookieName); err == nil && strings.TrimSpace(sid) != "" {
		return strings.TrimSpace(sid), true
	}
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		token := strings.TrimSpace(header[len("Bearer "):])
		return token, token != ""
	}
	return "", false
}

func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := readToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		session, err := s.accountSvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextSessionKey, session)
		c.Request = c.Request.WithContext(obscontext.WithAccountID(c.Request.Context(), session.AccountID.String()))
		c.Next()
	}
}

func sessionFromContext(c *gin.Context) (*accountdomain.Session, bool) {
	v, ok := c.Get(contextSessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*accountdomain.Session)
	return session, ok && session != nil
}

func accountIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	session, ok := sessionFromContext(c)
	if !ok {
		return 0, false
	}
	return session.AccountID, true
}
