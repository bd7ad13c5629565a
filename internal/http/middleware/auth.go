// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements optional bearer-token identification. A valid
// Authorization header binds the token subject to the Gin context under
// "userID", which KeyByUserOrIP and Logger pick up. Requests without a token,
// or with an invalid one, continue anonymously: the public endpoints of this
// service do not require authentication.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// userIDKey is the Gin context key holding the authenticated subject.
const userIDKey = "userID"

// SubjectParser validates a raw bearer token and returns its subject.
type SubjectParser func(raw string) (string, error)

// Authenticate returns a middleware that resolves the bearer token (if any)
// through parse and stores the subject under "userID". It never aborts.
func Authenticate(parse SubjectParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if parse == nil {
			c.Next()
			return
		}
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.Next()
			return
		}
		sub, err := parse(raw)
		if err != nil || sub == "" {
			LoggerFrom(c).Debug().Err(err).Msg("ignoring invalid bearer token")
			c.Next()
			return
		}
		c.Set(userIDKey, sub)
		c.Next()
	}
}

// UserID returns the authenticated subject stored by Authenticate.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// bearerToken extracts the token from an "Authorization: Bearer <t>" value.
func bearerToken(h string) string {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
