// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, which hardens the JSON responses of the
// account and history API. The header set is computed once when the
// middleware is built; per request only the HTTPS check and the no-store
// path lookup remain.
//
// WebSocket handshakes are passed through untouched: the relay writes its
// own 101 response on the hijacked connection, so headers staged on the Gin
// writer would never reach the client.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests (direct
	// TLS or X-Forwarded-Proto: https). Enable only when traffic is HTTPS
	// end-to-end.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days when <= 0.
	HSTSMaxAge time.Duration
	// NoStore marks every response Cache-Control: no-store.
	NoStore bool
	// NoStorePaths get no-store even when NoStore is false. Endpoints that
	// return session tokens belong here.
	NoStorePaths []string
	// EnablePolicy adds Permissions-Policy and
	// X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
}

type header struct{ key, value string }

var noStoreHeaders = []header{
	{"Cache-Control", "no-store"},
	{"Pragma", "no-cache"},
	{"Expires", "0"},
}

// SecurityHeaders returns a Gin middleware that adds conservative security
// headers to API responses:
//
//	X-Content-Type-Options: nosniff
//	X-Frame-Options: DENY
//	Referrer-Policy: no-referrer
//	Permissions-Policy / X-Permitted-Cross-Domain-Policies   (EnablePolicy)
//	Cache-Control: no-store, Pragma, Expires                 (NoStore or NoStorePaths)
//	Strict-Transport-Security                                (EnableHSTS, HTTPS only)
//
// X-Request-ID is appended to Access-Control-Expose-Headers when present so
// browser clients can quote it in bug reports.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	base := []header{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		base = append(base,
			header{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			header{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 180 * 24 * time.Hour
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"

	noStore := make(map[string]struct{}, len(opt.NoStorePaths))
	for _, p := range opt.NoStorePaths {
		noStore[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			c.Next()
			return
		}

		h := c.Writer.Header()
		for _, kv := range base {
			h.Set(kv.key, kv.value)
		}
		if _, sensitive := noStore[c.Request.URL.Path]; opt.NoStore || sensitive {
			for _, kv := range noStoreHeaders {
				h.Set(kv.key, kv.value)
			}
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}

		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers unless present.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	switch {
	case cur == "":
		h.Set(key, name)
	case !strings.Contains(strings.ToLower(cur), strings.ToLower(name)):
		h.Set(key, cur+", "+name)
	}
}

// isHTTPS reports whether the request used HTTPS directly or behind a proxy
// that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
