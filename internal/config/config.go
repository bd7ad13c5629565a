// Package config loads the relay's settings from the environment.
//
// Every setting has a default that runs a local single-process relay; only
// JWT_SECRET (and GOOGLE_CLIENT_ID for Google sign-in) matter in
// production. Unparsable values fall back to the default, and Validate
// reports all out-of-range values in one error.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-chat-relay/internal/sysutil"
)

// DevJWTSecret signs session tokens when JWT_SECRET is unset. The server
// warns at startup while it is in effect.
const DevJWTSecret = "dev-only-insecure-secret"

// CORSConfig lists browser origins allowed on the REST API. Empty allows any.
type CORSConfig struct {
	AllowedOrigins []string // CORS_ALLOWED_ORIGINS
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool          // ENABLE_HSTS
	HSTSMaxAge time.Duration // HSTS_MAX_AGE
}

// OTELConfig controls trace export.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG, 0..1
}

// AuthConfig holds session token and Google OAuth settings.
type AuthConfig struct {
	JWTSecret          string        // JWT_SECRET
	JWTTTL             time.Duration // JWT_TTL; 0 issues tokens without expiry
	GoogleClientID     string        // GOOGLE_CLIENT_ID (legacy: CLIENT_ID)
	GoogleClientSecret string        // GOOGLE_CLIENT_SECRET (legacy: CLIENT_SECRET)
	DefaultAvatarURL   string        // DEFAULT_AVATAR_URL
}

// GoogleEnabled reports whether Google sign-in has a client configured.
func (a AuthConfig) GoogleEnabled() bool {
	return strings.TrimSpace(a.GoogleClientID) != ""
}

// RelayConfig tunes the WebSocket relay.
type RelayConfig struct {
	Path           string        // WS_PATH
	AllowedOrigins []string      // WS_ALLOWED_ORIGINS; empty accepts any origin
	PersistTimeout time.Duration // RELAY_PERSIST_TIMEOUT
	MaxFrameBytes  int64         // RELAY_MAX_FRAME_BYTES
	FrameRPS       float64       // RELAY_FRAME_RPS; 0 disables per-connection limiting
	FrameBurst     int           // RELAY_FRAME_BURST
	SendBuffer     int           // RELAY_SEND_BUFFER
	PingInterval   time.Duration // RELAY_PING_INTERVAL
	PongWait       time.Duration // RELAY_PONG_WAIT
	WriteWait      time.Duration // RELAY_WRITE_WAIT
	StrictSender   bool          // RELAY_STRICT_SENDER
}

// Config is the complete server configuration.
type Config struct {
	Port              string // PORT
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string // REST prefix; "/" serves at the root

	DBPath string

	// REST API limits; the relay path is exempt.
	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig
	Auth     AuthConfig
	Relay    RelayConfig
	OTEL     OTELConfig
}

// Load reads the environment and validates the result. The returned Config
// is populated even when err is non-nil.
func Load() (Config, error) {
	cfg := Config{
		Port:              env("PORT", "5000", str),
		ReadTimeout:       env("READ_TIMEOUT", 15*time.Second, time.ParseDuration),
		ReadHeaderTimeout: env("READ_HEADER_TIMEOUT", 10*time.Second, time.ParseDuration),
		WriteTimeout:      env("WRITE_TIMEOUT", 20*time.Second, time.ParseDuration),
		IdleTimeout:       env("IDLE_TIMEOUT", 60*time.Second, time.ParseDuration),
		MaxHeaderBytes:    env("MAX_HEADER_BYTES", 1<<20, strconv.Atoi),
		GinMode:           ginMode(env("GIN_MODE", "release", str)),

		LogLevel:       logLevel(env("LOG_LEVEL", "info", str)),
		LogPretty:      env("LOG_PRETTY", false, boolean),
		SwaggerEnabled: env("SWAGGER_ENABLED", false, boolean),
		APIBasePath:    normalizeBasePath(env("API_BASE_PATH", "/", str)),

		DBPath: env("DB_PATH", "app.db", str),

		RateRPS:   env("RATE_RPS", 5.0, float),
		RateBurst: env("RATE_BURST", 10, strconv.Atoi),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(env("CORS_ALLOWED_ORIGINS", "", str)),
		},
		Security: SecurityConfig{
			EnableHSTS: env("ENABLE_HSTS", false, boolean),
			HSTSMaxAge: env("HSTS_MAX_AGE", 180*24*time.Hour, time.ParseDuration),
		},
		Auth:  loadAuth(),
		Relay: loadRelay(),
		OTEL: OTELConfig{
			Enabled:     env("OTEL_ENABLED", false, boolean),
			Endpoint:    env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317", str),
			Insecure:    env("OTEL_EXPORTER_OTLP_INSECURE", true, boolean),
			ServiceName: env("OTEL_SERVICE_NAME", "go-chat-relay", str),
			SampleRatio: env("OTEL_TRACES_SAMPLER_ARG", 1.0, float),
		},
	}
	return cfg, cfg.Validate()
}

func loadAuth() AuthConfig {
	return AuthConfig{
		JWTSecret:          env("JWT_SECRET", DevJWTSecret, str),
		JWTTTL:             env("JWT_TTL", 7*24*time.Hour, time.ParseDuration),
		GoogleClientID:     env("GOOGLE_CLIENT_ID", "", str, "CLIENT_ID"),
		GoogleClientSecret: env("GOOGLE_CLIENT_SECRET", "", str, "CLIENT_SECRET"),
		DefaultAvatarURL:   env("DEFAULT_AVATAR_URL", "", str),
	}
}

func loadRelay() RelayConfig {
	return RelayConfig{
		Path:           normalizeBasePath(env("WS_PATH", "/ws", str)),
		AllowedOrigins: splitCSV(env("WS_ALLOWED_ORIGINS", "", str)),
		PersistTimeout: env("RELAY_PERSIST_TIMEOUT", 5*time.Second, time.ParseDuration),
		MaxFrameBytes:  env("RELAY_MAX_FRAME_BYTES", int64(64<<10), int64Of),
		FrameRPS:       env("RELAY_FRAME_RPS", 0.0, float),
		FrameBurst:     env("RELAY_FRAME_BURST", 20, strconv.Atoi),
		SendBuffer:     env("RELAY_SEND_BUFFER", 64, strconv.Atoi),
		PingInterval:   env("RELAY_PING_INTERVAL", 54*time.Second, time.ParseDuration),
		PongWait:       env("RELAY_PONG_WAIT", 60*time.Second, time.ParseDuration),
		WriteWait:      env("RELAY_WRITE_WAIT", 10*time.Second, time.ParseDuration),
		StrictSender:   env("RELAY_STRICT_SENDER", false, boolean),
	}
}

// Validate returns every constraint violation joined into one error, or nil.
func (c Config) Validate() error {
	var errs []error
	check := func(bad bool, format string, args ...any) {
		if bad {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.LogLevel == "", "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	check(strings.TrimSpace(c.Port) == "", "PORT must not be empty")
	check(c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0,
		"server timeouts must be positive durations")
	check(c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0")
	check(strings.TrimSpace(c.DBPath) == "", "DB_PATH must not be empty")
	check(c.RateRPS < 0, "RATE_RPS must be >= 0, got %v", c.RateRPS)
	check(c.RateBurst < 1, "RATE_BURST must be >= 1, got %d", c.RateBurst)
	check(c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0")

	check(strings.TrimSpace(c.Auth.JWTSecret) == "", "JWT_SECRET must not be empty")
	check(c.Auth.JWTTTL < 0, "JWT_TTL must be >= 0")

	r := c.Relay
	check(r.Path == "/", "WS_PATH must not be the root path")
	check(r.Path == c.APIBasePath && c.APIBasePath != "/", "WS_PATH must differ from API_BASE_PATH")
	check(r.PersistTimeout <= 0, "RELAY_PERSIST_TIMEOUT must be > 0")
	check(r.MaxFrameBytes <= 0, "RELAY_MAX_FRAME_BYTES must be > 0")
	check(r.FrameRPS < 0, "RELAY_FRAME_RPS must be >= 0")
	check(r.FrameBurst < 1, "RELAY_FRAME_BURST must be >= 1")
	check(r.SendBuffer < 1, "RELAY_SEND_BUFFER must be >= 1")
	check(r.PingInterval <= 0 || r.PongWait <= 0 || r.WriteWait <= 0,
		"relay keepalive durations must be positive")
	check(r.PingInterval > 0 && r.PingInterval >= r.PongWait,
		"RELAY_PING_INTERVAL (%s) must be shorter than RELAY_PONG_WAIT (%s)", r.PingInterval, r.PongWait)

	check(c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// env reads key (or the first non-blank alias) and parses it. Unset, blank
// and unparsable values yield def.
func env[T any](key string, def T, parse func(string) (T, error), aliases ...string) T {
	raw, ok := sysutil.LookupEnv(append([]string{key}, aliases...)...)
	if !ok {
		return def
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func str(s string) (string, error) { return s, nil }

func float(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func int64Of(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func boolean(s string) (bool, error) {
	switch {
	case sysutil.IsTruthy(s):
		return true, nil
	case sysutil.IsFalsy(s):
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// logLevel lowercases s and maps "warning" to "warn". Unknown levels become
// "" so Validate rejects them.
func logLevel(s string) string {
	switch s = strings.ToLower(s); s {
	case "warning":
		return "warn"
	case "debug", "info", "warn", "error", "fatal", "panic":
		return s
	}
	return ""
}

// ginMode falls back to release for anything gin does not know.
func ginMode(s string) string {
	switch s = strings.ToLower(s); s {
	case "debug", "release", "test":
		return s
	}
	return "release"
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// blank becomes "/".
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
