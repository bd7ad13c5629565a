package auth

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

// ErrEmailNotVerified is returned when Google reports an unverified email.
var ErrEmailNotVerified = errors.New("google email not verified")

// GoogleIdentity is the subset of ID token claims the account flow uses.
type GoogleIdentity struct {
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// IDTokenVerifier validates a Google ID token for the configured audience.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*GoogleIdentity, error)
}

// CodeExchanger trades an authorization code for OAuth2 tokens.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// GoogleVerifier checks ID tokens with Google's published keys.
type GoogleVerifier struct {
	ClientID string
}

// Verify validates rawIDToken and extracts identity claims.
func (g *GoogleVerifier) Verify(ctx context.Context, rawIDToken string) (*GoogleIdentity, error) {
	payload, err := idtoken.Validate(ctx, rawIDToken, g.ClientID)
	if err != nil {
		return nil, err
	}
	return identityFromClaims(payload.Claims), nil
}

func identityFromClaims(c map[string]any) *GoogleIdentity {
	id := &GoogleIdentity{
		Email:   claimString(c, "email"),
		Name:    claimString(c, "name"),
		Picture: claimString(c, "picture"),
	}
	switch v := c["email_verified"].(type) {
	case bool:
		id.EmailVerified = v
	case string:
		id.EmailVerified = v == "true"
	}
	return id
}

func claimString(c map[string]any, key string) string {
	s, _ := c[key].(string)
	return s
}

// GoogleExchanger performs the authorization-code exchange used by the
// popup flow, where the redirect URI is the literal "postmessage".
type GoogleExchanger struct {
	Config *oauth2.Config
}

// NewGoogleExchanger builds an exchanger for the given OAuth client.
func NewGoogleExchanger(clientID, clientSecret string) *GoogleExchanger {
	return &GoogleExchanger{Config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "postmessage",
		Endpoint:     google.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}}
}

// Exchange trades code for tokens.
func (g *GoogleExchanger) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.Config.Exchange(ctx, code)
}
