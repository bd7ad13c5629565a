// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the single access log of the server.
// It never logs bodies. Query strings and header values pass through
// redactPII; credential headers are masked outright.
//
// A relay connection is one long GET: the handler returns only when the
// WebSocket closes. Such requests are logged once, at close, as
// "websocket_session" with the session duration and the 101 status the
// relay wrote on the hijacked connection.
package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PII patterns. Order matters when applying them: IDs, then email, then
// phone (the loosest).
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so UUID hex segments never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redactPII scrubs UUIDs, emails and phone numbers from s. /search queries
// carry email fragments, so every logged query string goes through here.
func redactPII(s string) string {
	if s == "" {
		return s
	}
	out := uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
	out = phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
	return out
}

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are replaced with "[REDACTED]" in addition to
	// Authorization, Cookie and Set-Cookie. Matching is case-insensitive.
	MaskHeaders []string
}

// RedactingLogger returns the access-log middleware. Severity is INFO, WARN
// for 4xx and ERROR for 5xx or when handlers recorded gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		upgrade := websocket.IsWebSocketUpgrade(c.Request)
		query := truncate(redactPII(c.Request.URL.RawQuery), maxQueryLogLength)
		headers := scrubHeaders(c.Request.Header, masked)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		msg := "http_request"
		if upgrade && c.Writer.Written() && status == http.StatusOK {
			// The relay wrote 101 on the hijacked conn; gin never saw it.
			status = http.StatusSwitchingProtocols
			msg = "websocket_session"
		}

		ev := log.Info()
		switch {
		case len(c.Errors) > 0:
			ev = log.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}

		ev.
			Str("request_id", c.GetString(requestIDKey)).
			Str("user_id", c.GetString(userIDKey)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", headers).
			Msg(msg)
	}
}

// scrubHeaders renders h as a log dictionary with masked and redacted values.
func scrubHeaders(h http.Header, masked map[string]struct{}) *zerolog.Event {
	d := zerolog.Dict()
	for k, vv := range h {
		if _, ok := masked[strings.ToLower(k)]; ok {
			d.Str(k, "[REDACTED]")
			continue
		}
		d.Str(k, redactPII(strings.Join(vv, ", ")))
	}
	return d
}
