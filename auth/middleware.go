package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CookieName = "admin_token"
	actorKey   = "auth.actor"
)

// Middleware resolves the session token from the admin cookie or a Bearer
// header and stores the actor on the context. It never rejects a request;
// handlers decide what an anonymous actor may do.
func Middleware(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(CookieName)
		if token == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if token != "" {
			if actor, err := s.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(actorKey, actor)
			} else {
				s.log.WithError(err).WithField("path", c.Request.URL.Path).Debug("ignoring session token")
			}
		}
		c.Next()
	}
}

// ActorFrom returns the request's actor, anonymous when none was resolved.
func ActorFrom(c *gin.Context) Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(Actor); ok {
			return a
		}
	}
	return Actor{}
}

// RequestFrom bundles the request's actor with its client address.
func RequestFrom(c *gin.Context) Request {
	return Request{Actor: ActorFrom(c), SourceIP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// SetSessionCookie writes the session token as an HttpOnly cookie.
func SetSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CookieName, token, maxAge, "/", "", c.Request.TLS != nil, true)
}

func ClearSessionCookie(c *gin.Context) {
	c.SetCookie(CookieName, "", -1, "/", "", c.Request.TLS != nil, true)
}
