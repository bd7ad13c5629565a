package config

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// Keys a developer shell commonly exports; tests expect defaults.
var ambientKeys = []string{
	"PORT", "LOG_LEVEL", "GIN_MODE", "DB_PATH", "JWT_SECRET",
	"GOOGLE_CLIENT_ID", "CLIENT_ID", "GOOGLE_CLIENT_SECRET", "CLIENT_SECRET",
	"API_BASE_PATH", "WS_PATH",
}

func TestMain(m *testing.M) {
	for _, k := range ambientKeys {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "5000" || cfg.APIBasePath != "/" || cfg.DBPath != "app.db" || cfg.GinMode != "release" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.RateRPS != 5 || cfg.RateBurst != 10 {
		t.Fatalf("rate defaults: %v/%d", cfg.RateRPS, cfg.RateBurst)
	}
	want := RelayConfig{
		Path:           "/ws",
		PersistTimeout: 5 * time.Second,
		MaxFrameBytes:  64 << 10,
		FrameBurst:     20,
		SendBuffer:     64,
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
	if !reflect.DeepEqual(cfg.Relay, want) {
		t.Fatalf("relay defaults:\n got %+v\nwant %+v", cfg.Relay, want)
	}
	if cfg.Auth.JWTSecret != DevJWTSecret || cfg.Auth.JWTTTL != 7*24*time.Hour || cfg.Auth.GoogleEnabled() {
		t.Fatalf("auth defaults: %+v", cfg.Auth)
	}
	if cfg.OTEL.Enabled || !cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "go-chat-relay" {
		t.Fatalf("otel defaults: %+v", cfg.OTEL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	env := map[string]string{
		"PORT":                  "8088",
		"READ_TIMEOUT":          "2s",
		"MAX_HEADER_BYTES":      "8192",
		"GIN_MODE":              "DEBUG",
		"LOG_LEVEL":             "Warning",
		"LOG_PRETTY":            "yes",
		"SWAGGER_ENABLED":       "on",
		"API_BASE_PATH":         "api/v1/",
		"RATE_RPS":              "x", // unparsable: default
		"RATE_BURST":            "3",
		"CORS_ALLOWED_ORIGINS":  " https://a.com , , http://b ",
		"ENABLE_HSTS":           "TRUE",
		"HSTS_MAX_AGE":          "24h",
		"JWT_SECRET":            "s3cret",
		"JWT_TTL":               "0s",
		"GOOGLE_CLIENT_ID":      "cid.apps.googleusercontent.com",
		"GOOGLE_CLIENT_SECRET":  "shh",
		"DEFAULT_AVATAR_URL":    "https://img.example/a.png",
		"WS_PATH":               "socket/",
		"WS_ALLOWED_ORIGINS":    "https://a.com",
		"RELAY_PERSIST_TIMEOUT": "750ms",
		"RELAY_MAX_FRAME_BYTES": "1024",
		"RELAY_FRAME_RPS":       "2.5",
		"RELAY_FRAME_BURST":     "4",
		"RELAY_SEND_BUFFER":     "8",
		"RELAY_PING_INTERVAL":   "5s",
		"RELAY_PONG_WAIT":       "6s",
		"RELAY_WRITE_WAIT":      "1s",
		"RELAY_STRICT_SENDER":   "true",

		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.MaxHeaderBytes != 8192 || cfg.GinMode != "debug" {
		t.Fatalf("server: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs: %+v", cfg)
	}
	if cfg.RateRPS != 5 || cfg.RateBurst != 3 {
		t.Fatalf("rate: %v/%d", cfg.RateRPS, cfg.RateBurst)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security: %+v", cfg.Security)
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Auth.JWTTTL != 0 || !cfg.Auth.GoogleEnabled() ||
		cfg.Auth.GoogleClientSecret != "shh" || cfg.Auth.DefaultAvatarURL != "https://img.example/a.png" {
		t.Fatalf("auth: %+v", cfg.Auth)
	}
	want := RelayConfig{
		Path:           "/socket",
		AllowedOrigins: []string{"https://a.com"},
		PersistTimeout: 750 * time.Millisecond,
		MaxFrameBytes:  1024,
		FrameRPS:       2.5,
		FrameBurst:     4,
		SendBuffer:     8,
		PingInterval:   5 * time.Second,
		PongWait:       6 * time.Second,
		WriteWait:      time.Second,
		StrictSender:   true,
	}
	if !reflect.DeepEqual(cfg.Relay, want) {
		t.Fatalf("relay:\n got %+v\nwant %+v", cfg.Relay, want)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Insecure || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel: %+v", cfg.OTEL)
	}
}

func TestLoad_GoogleLegacyEnvNames(t *testing.T) {
	t.Setenv("CLIENT_ID", "legacy-id")
	t.Setenv("CLIENT_SECRET", "legacy-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.GoogleClientID != "legacy-id" || cfg.Auth.GoogleClientSecret != "legacy-secret" || !cfg.Auth.GoogleEnabled() {
		t.Fatalf("legacy names not honored: %+v", cfg.Auth)
	}

	t.Setenv("GOOGLE_CLIENT_ID", "new-id")
	cfg, _ = Load()
	if cfg.Auth.GoogleClientID != "new-id" {
		t.Fatalf("GOOGLE_CLIENT_ID must win over CLIENT_ID, got %q", cfg.Auth.GoogleClientID)
	}
}

func TestLoad_RejectsOutOfRange(t *testing.T) {
	cases := []struct{ key, val, want string }{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"READ_TIMEOUT", "0s", "server timeouts"},
		{"MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"RATE_RPS", "-1", "RATE_RPS"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"JWT_TTL", "-1h", "JWT_TTL"},
		{"WS_PATH", "/", "WS_PATH must not be the root"},
		{"RELAY_PERSIST_TIMEOUT", "0s", "RELAY_PERSIST_TIMEOUT"},
		{"RELAY_MAX_FRAME_BYTES", "0", "RELAY_MAX_FRAME_BYTES"},
		{"RELAY_FRAME_RPS", "-2", "RELAY_FRAME_RPS"},
		{"RELAY_FRAME_BURST", "0", "RELAY_FRAME_BURST"},
		{"RELAY_SEND_BUFFER", "0", "RELAY_SEND_BUFFER"},
		{"RELAY_WRITE_WAIT", "0s", "keepalive durations"},
		{"RELAY_PING_INTERVAL", "2m", "shorter than RELAY_PONG_WAIT"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Port = "  "
	cfg.DBPath = ""
	cfg.Auth.JWTSecret = " "
	cfg.APIBasePath = "/chat"
	cfg.Relay.Path = "/chat"

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 4 {
		t.Fatalf("want 4 joined errors, got %v", err)
	}
	for _, want := range []string{"PORT", "DB_PATH", "JWT_SECRET", "differ from API_BASE_PATH"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestEnv_ParsingAndAliases(t *testing.T) {
	t.Setenv("X_BLANK", "  ")
	t.Setenv("X_DUR", " 150ms ")
	t.Setenv("X_BAD", "zzz")
	t.Setenv("X_OLD", "legacy")

	if got := env("X_BLANK", "d", str); got != "d" {
		t.Errorf("blank: %q", got)
	}
	if got := env("X_DUR", time.Second, time.ParseDuration); got != 150*time.Millisecond {
		t.Errorf("duration: %v", got)
	}
	if got := env("X_BAD", 7, func(s string) (int, error) { return 0, errors.New("nope") }); got != 7 {
		t.Errorf("parse error fallback: %d", got)
	}
	if got := env("X_BLANK", "d", str, "X_OLD"); got != "legacy" {
		t.Errorf("alias: %q", got)
	}
	if got := env("X_UNSET_ANYWHERE", int64(9), int64Of); got != 9 {
		t.Errorf("unset: %d", got)
	}
}

func TestBoolean(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "Y", "on"} {
		if b, err := boolean(v); err != nil || !b {
			t.Errorf("boolean(%q) = %v, %v", v, b, err)
		}
	}
	for _, v := range []string{"0", "false", "no", "N", "off"} {
		if b, err := boolean(v); err != nil || b {
			t.Errorf("boolean(%q) = %v, %v", v, b, err)
		}
	}
	if _, err := boolean("maybe"); err == nil {
		t.Error("boolean(maybe) should fail")
	}
}

func TestNormalizers(t *testing.T) {
	paths := map[string]string{"": "/", " / ": "/", "v1": "/v1", "/v1/": "/v1", "//ws//": "/ws"}
	for in, want := range paths {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
	levels := map[string]string{"INFO": "info", "warning": "warn", "trace": ""}
	for in, want := range levels {
		if got := logLevel(in); got != want {
			t.Errorf("logLevel(%q) = %q; want %q", in, got, want)
		}
	}
	if ginMode("Test") != "test" || ginMode("prod") != "release" {
		t.Error("ginMode normalization")
	}
	if splitCSV("") != nil || !reflect.DeepEqual(splitCSV(" a, ,b ,"), []string{"a", "b"}) {
		t.Error("splitCSV")
	}
}
