package sessions

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const CookieName = "session_id"

type CookieConfig struct {
	MaxAge time.Duration
	Secure bool
}

// resolves the session cookie on a request to a session id. a newly
// issued id is written back as a persistent HttpOnly cookie.
func ResolveCookie(c *gin.Context, registry *Registry, config CookieConfig) (string, bool) {
	token, _ := c.Cookie(CookieName) //nolint:errcheck // missing cookie is an empty token

	sessionID, created := registry.Resolve(token)
	if created {
		http.SetCookie(c.Writer, NewCookie(sessionID, config))
	}

	return sessionID, created
}

func NewCookie(sessionID string, config CookieConfig) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(config.MaxAge.Seconds()),
		Expires:  time.Now().Add(config.MaxAge),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
