package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/tbourn/go-chat-relay/internal/auth"
	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/services"
)

func TestEmailSignup_SuccessAndErrorMappings(t *testing.T) {
	env := newEnv(t)

	w := doJSON(env.router, http.MethodPost, "/emailsignup",
		SignupRequest{Name: "alice", Email: "Alice@Example.com", Password: "password1"})
	if w.Code != http.StatusOK {
		t.Fatalf("signup -> %d %s", w.Code, w.Body.String())
	}
	var msg MessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil || msg.Message != "User created successfully" {
		t.Fatalf("unexpected body %s (%v)", w.Body.String(), err)
	}

	cases := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{"bad json", "{", http.StatusBadRequest, "invalid request body"},
		{"short name", SignupRequest{"al", "x@example.com", "password1"}, http.StatusBadRequest, "Name must be 3 characters long"},
		{"empty email", SignupRequest{"carol", "", "password1"}, http.StatusBadRequest, "Email cannot be empty"},
		{"short password", SignupRequest{"carol", "c@example.com", "short"}, http.StatusBadRequest, "Password must be 8 characters long"},
		{"duplicate email", SignupRequest{"alice2", "alice@example.com", "password1"}, http.StatusBadRequest, "User already exists"},
		{"duplicate name", SignupRequest{"alice", "other@example.com", "password1"}, http.StatusConflict, "name already taken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(env.router, http.MethodPost, "/emailsignup", tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			er := decodeErr(t, w)
			if er.Error != tc.msg || er.Message != tc.msg {
				t.Fatalf("error = %q; want %q", er.Error, tc.msg)
			}
		})
	}
}

func TestEmailLogin_SessionAndFailures(t *testing.T) {
	env := newEnv(t)
	if w := doJSON(env.router, http.MethodPost, "/emailsignup",
		SignupRequest{Name: "alice", Email: "alice@example.com", Password: "password1"}); w.Code != http.StatusOK {
		t.Fatalf("seed signup -> %d", w.Code)
	}

	w := doJSON(env.router, http.MethodPost, "/emaillogin", LoginRequest{Email: " ALICE@example.com ", Password: "password1"})
	if w.Code != http.StatusOK {
		t.Fatalf("login -> %d %s", w.Code, w.Body.String())
	}
	var sess services.Session
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Name != "alice" || sess.Picture != "http://default.png" || sess.Token == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	claims, err := env.accounts.Tokens.Parse(sess.Token)
	if err != nil || claims.Name != "alice" || claims.Subject == "" {
		t.Fatalf("token did not round-trip: %+v %v", claims, err)
	}

	cases := []struct {
		name string
		body any
		msg  string
	}{
		{"empty email", LoginRequest{Password: "password1"}, "Email cannot be empty"},
		{"short password", LoginRequest{Email: "alice@example.com", Password: "short"}, "Password must be 8 characters long"},
		{"unknown user", LoginRequest{Email: "nobody@example.com", Password: "password1"}, "The user doesn't exist"},
		{"wrong password", LoginRequest{Email: "alice@example.com", Password: "password2"}, "Password is wrong"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(env.router, http.MethodPost, "/emaillogin", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
			}
			if er := decodeErr(t, w); er.Error != tc.msg {
				t.Fatalf("error = %q; want %q", er.Error, tc.msg)
			}
		})
	}
}

func TestAccountHandlers_StorageFailuresAre500(t *testing.T) {
	r := mount(New(failingAccounts{}, nil))
	buf := captureLogs(t)

	for _, tc := range []struct {
		method, path string
		body         any
		code         string
	}{
		{http.MethodPost, "/emailsignup", SignupRequest{"alice", "a@example.com", "password1"}, ErrCodeSignupFailed},
		{http.MethodPost, "/emaillogin", LoginRequest{"a@example.com", "password1"}, ErrCodeLoginFailed},
		{http.MethodGet, "/search?query=a", nil, ErrCodeSearchFailed},
		{http.MethodGet, "/getImage?query=a", nil, ErrCodeInternal},
	} {
		w := doJSON(r, tc.method, tc.path, tc.body)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s %s -> %d", tc.method, tc.path, w.Code)
		}
		if er := decodeErr(t, w); er.Code != tc.code {
			t.Fatalf("%s: code = %q; want %q", tc.path, er.Code, tc.code)
		}
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected 5xx to be logged, got %s", buf.String())
	}
}

func TestGoogleLogin(t *testing.T) {
	env := newEnv(t)

	// Not configured.
	w := doJSON(env.router, http.MethodPost, "/googlelogin", GoogleLoginRequest{IDToken: "tok"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled -> %d", w.Code)
	}

	// Missing token.
	env.accounts.Google = stubVerifier{err: errors.New("unused")}
	w = doJSON(env.router, http.MethodPost, "/googlelogin", GoogleLoginRequest{})
	if w.Code != http.StatusBadRequest || decodeErr(t, w).Error != "Google login failed. Try again" {
		t.Fatalf("empty token -> %d %s", w.Code, w.Body.String())
	}

	// Verifier rejects; cause is not leaked.
	env.accounts.Google = stubVerifier{err: errors.New("audience mismatch")}
	w = doJSON(env.router, http.MethodPost, "/googlelogin", GoogleLoginRequest{IDToken: "tok"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("rejected -> %d", w.Code)
	}
	if er := decodeErr(t, w); er.Error != "Google login failed. Try again" || strings.Contains(w.Body.String(), "audience") {
		t.Fatalf("unexpected error body %s", w.Body.String())
	}

	// Unverified email.
	env.accounts.Google = stubVerifier{id: &auth.GoogleIdentity{Email: "g@example.com", Name: "Gina"}}
	w = doJSON(env.router, http.MethodPost, "/googlelogin", GoogleLoginRequest{IDToken: "tok"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unverified -> %d", w.Code)
	}

	// First login provisions the account with a suffixed name.
	env.accounts.Google = stubVerifier{id: &auth.GoogleIdentity{
		Email: "g@example.com", Name: "Gina", Picture: "http://g.png", EmailVerified: true,
	}}
	w = doJSON(env.router, http.MethodPost, "/googlelogin", GoogleLoginRequest{IDToken: "tok"})
	if w.Code != http.StatusOK {
		t.Fatalf("google login -> %d %s", w.Code, w.Body.String())
	}
	var sess services.Session
	_ = json.Unmarshal(w.Body.Bytes(), &sess)
	if !strings.HasPrefix(sess.Name, "Gina_") || sess.Picture != "http://g.png" || sess.Token == "" {
		t.Fatalf("unexpected session %+v", sess)
	}

	// Second login finds the same account.
	w = doJSON(env.router, http.MethodPost, "/googlelogin", GoogleLoginRequest{IDToken: "tok"})
	var again services.Session
	_ = json.Unmarshal(w.Body.Bytes(), &again)
	if w.Code != http.StatusOK || again.Name != sess.Name {
		t.Fatalf("repeat login -> %d %+v", w.Code, again)
	}
}

func TestGoogleCode(t *testing.T) {
	env := newEnv(t)

	w := doJSON(env.router, http.MethodPost, "/auth/google", GoogleCodeRequest{Code: "c"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled -> %d", w.Code)
	}

	w = doJSON(env.router, http.MethodPost, "/auth/google", GoogleCodeRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing code -> %d", w.Code)
	}

	env.accounts.Exchanger = stubExchanger{err: errors.New("invalid_grant")}
	w = doJSON(env.router, http.MethodPost, "/auth/google", GoogleCodeRequest{Code: "c"})
	if w.Code != http.StatusBadRequest || decodeErr(t, w).Code != ErrCodeGoogleFailed {
		t.Fatalf("exchange failure -> %d %s", w.Code, w.Body.String())
	}

	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	tok := (&oauth2.Token{AccessToken: "at", TokenType: "Bearer", RefreshToken: "rt", Expiry: expiry}).
		WithExtra(map[string]any{"id_token": "idt"})
	env.accounts.Exchanger = stubExchanger{tok: tok}
	w = doJSON(env.router, http.MethodPost, "/auth/google", GoogleCodeRequest{Code: "c"})
	if w.Code != http.StatusOK {
		t.Fatalf("exchange -> %d %s", w.Code, w.Body.String())
	}
	var got GoogleTokens
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}
	if got.AccessToken != "at" || got.RefreshToken != "rt" || got.IDToken != "idt" || !got.Expiry.Equal(expiry) {
		t.Fatalf("unexpected tokens %+v", got)
	}
}

func TestSearchUsers_AndGetImage(t *testing.T) {
	env := newEnv(t)
	seedUser(t, env.db, "alice", "alice@example.com", "http://a.png")
	seedUser(t, env.db, "bob", "bob@example.com", "")
	seedUser(t, env.db, "under", "under_score@example.com", "")

	var users []domain.User
	w := doJSON(env.router, http.MethodGet, "/search?query=EXAMPLE", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &users); err != nil || w.Code != http.StatusOK || len(users) != 3 {
		t.Fatalf("search all -> %d %s (%v)", w.Code, w.Body.String(), err)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("password hash leaked: %s", w.Body.String())
	}

	w = doJSON(env.router, http.MethodGet, "/search?query=example&limit=2", nil)
	users = nil
	_ = json.Unmarshal(w.Body.Bytes(), &users)
	if len(users) != 2 || users[0].Email != "alice@example.com" {
		t.Fatalf("limit 2 -> %+v", users)
	}

	// LIKE wildcards are literal.
	w = doJSON(env.router, http.MethodGet, "/search?query=_", nil)
	users = nil
	_ = json.Unmarshal(w.Body.Bytes(), &users)
	if len(users) != 1 || users[0].Name != "under" {
		t.Fatalf("wildcard query -> %+v", users)
	}

	w = doJSON(env.router, http.MethodGet, "/search?query=nomatch", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("empty search -> %d %q", w.Code, w.Body.String())
	}

	for _, tc := range []struct{ name, want string }{
		{"alice", `"http://a.png"`},
		{"bob", "null"},
		{"nobody", "null"},
	} {
		w := doJSON(env.router, http.MethodGet, "/getImage?query="+tc.name, nil)
		if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != tc.want {
			t.Fatalf("getImage %s -> %d %q; want %s", tc.name, w.Code, w.Body.String(), tc.want)
		}
	}
}
