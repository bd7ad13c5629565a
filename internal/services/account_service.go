// Package services – AccountService
//
// This file implements AccountService, which owns user accounts: email
// sign-up and login, Google sign-in, user search and lookups by name. The
// name lookup doubles as the identity resolver used by the relay's delivery
// engine.
//
// Emails are trimmed and lowercased before they reach the store, so lookups
// are case-insensitive. Observability: public methods are OpenTelemetry
// instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/auth"
	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/repo"
)

// googleNameAttempts bounds retries when a generated Google user name
// collides with an existing one.
const googleNameAttempts = 5

// UserRepo defines the repository contract required by AccountService.
type UserRepo interface {
	// CreateUser inserts a user and reports unique violations as
	// repo.ErrDuplicateName / repo.ErrDuplicateEmail.
	CreateUser(ctx context.Context, db *gorm.DB, in repo.NewUser) (*domain.User, error)

	// FindUserByName returns the user with the exact name or repo.ErrNotFound.
	FindUserByName(ctx context.Context, db *gorm.DB, name string) (*domain.User, error)

	// FindUserByEmail returns the user with the email or repo.ErrNotFound.
	FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error)

	// SearchUsersByEmail returns users whose email contains the query.
	SearchUsersByEmail(ctx context.Context, db *gorm.DB, query string, limit int) ([]domain.User, error)
}

// Session is the result of a successful login.
type Session struct {
	Token   string `json:"token"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// AccountService handles registration, authentication and user lookups.
type AccountService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the user repository used by this service.
	Repo UserRepo
	// Tokens signs session tokens.
	Tokens *auth.TokenIssuer

	// Google verifies ID tokens; nil disables Google sign-in.
	Google auth.IDTokenVerifier
	// Exchanger performs the OAuth2 code exchange; nil disables it.
	Exchanger auth.CodeExchanger

	// DefaultAvatar is returned by email login for users without an image.
	DefaultAvatar string
	// SearchLimit caps search results; <= 0 means unlimited.
	SearchLimit int

	// nameSuffix generates Google name suffixes; overridable in tests.
	nameSuffix func() string
}

// NewAccountService constructs an AccountService with its required
// collaborators. Google clients are optional and set on the struct.
func NewAccountService(db *gorm.DB, r UserRepo, tokens *auth.TokenIssuer) *AccountService {
	return &AccountService{
		DB:          db,
		Repo:        r,
		Tokens:      tokens,
		SearchLimit: 50,
		nameSuffix:  auth.RandomSuffix,
	}
}

// NormalizeEmail trims and lowercases an email address. Casers are stateful,
// so each call builds its own.
func NormalizeEmail(email string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(email))
}

// Signup validates the request, hashes the password and creates the user.
func (s *AccountService) Signup(ctx context.Context, req auth.SignupRequest) error {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "Signup")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	req.Email = NormalizeEmail(req.Email)
	if err := auth.ValidateSignup(req); err != nil {
		return err
	}

	if _, err := s.Repo.FindUserByEmail(ctx, s.DB, req.Email); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.Repo.CreateUser(ctx, s.DB, repo.NewUser{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	})
	switch {
	case errors.Is(err, repo.ErrDuplicateEmail):
		return ErrUserExists
	case errors.Is(err, repo.ErrDuplicateName):
		return ErrNameTaken
	}
	return err
}

// Login verifies email credentials and issues a session token.
func (s *AccountService) Login(ctx context.Context, req auth.LoginRequest) (*Session, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	req.Email = NormalizeEmail(req.Email)
	if err := auth.ValidateLogin(req); err != nil {
		return nil, err
	}

	u, err := s.Repo.FindUserByEmail(ctx, s.DB, req.Email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := auth.ComparePassword(u.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrWrongPassword
		}
		return nil, err
	}

	picture := u.ImageURL
	if picture == "" {
		picture = s.DefaultAvatar
	}
	return s.session(u, picture)
}

// GoogleLogin verifies a Google ID token and signs the user in, creating an
// account on first use. New accounts are named "<google name>_<color>_<animal>".
func (s *AccountService) GoogleLogin(ctx context.Context, idToken string) (*Session, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "GoogleLogin")
	defer span.End()

	if s.Google == nil {
		return nil, ErrGoogleDisabled
	}

	id, err := s.Google.Verify(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGoogleLogin, err)
	}
	if !id.EmailVerified {
		return nil, fmt.Errorf("%w: %v", ErrGoogleLogin, auth.ErrEmailNotVerified)
	}
	email := NormalizeEmail(id.Email)

	u, err := s.Repo.FindUserByEmail(ctx, s.DB, email)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrGoogleLogin, err)
	}
	if u == nil {
		u, err = s.createGoogleUser(ctx, id, email)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGoogleLogin, err)
		}
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return s.session(u, id.Picture)
}

func (s *AccountService) createGoogleUser(ctx context.Context, id *auth.GoogleIdentity, email string) (*domain.User, error) {
	suffix := s.nameSuffix
	if suffix == nil {
		suffix = auth.RandomSuffix
	}
	var lastErr error
	for i := 0; i < googleNameAttempts; i++ {
		u, err := s.Repo.CreateUser(ctx, s.DB, repo.NewUser{
			Name:     auth.DisambiguatedName(id.Name, suffix()),
			Email:    email,
			ImageURL: id.Picture,
		})
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, repo.ErrDuplicateName) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// ExchangeCode trades a Google authorization code for OAuth2 tokens.
func (s *AccountService) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "ExchangeCode")
	defer span.End()

	if s.Exchanger == nil {
		return nil, ErrGoogleDisabled
	}
	return s.Exchanger.Exchange(ctx, code)
}

// FindByName resolves a display name to its user. A miss yields
// ErrUserNotFound; any other error is a storage failure.
func (s *AccountService) FindByName(ctx context.Context, name string) (*domain.User, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "FindByName",
		trace.WithAttributes(attribute.String("user.name", name)),
	)
	defer span.End()

	u, err := s.Repo.FindUserByName(ctx, s.DB, name)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Search returns users whose email contains query, case-insensitively. A
// limit <= 0, or one above SearchLimit, is replaced by SearchLimit.
func (s *AccountService) Search(ctx context.Context, query string, limit int) ([]domain.User, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "Search")
	defer span.End()

	if limit <= 0 || (s.SearchLimit > 0 && limit > s.SearchLimit) {
		limit = s.SearchLimit
	}
	users, err := s.Repo.SearchUsersByEmail(ctx, s.DB, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// ImageURL returns the stored image of the named user, or nil when the user
// is unknown or has none.
func (s *AccountService) ImageURL(ctx context.Context, name string) (*string, error) {
	u, err := s.FindByName(ctx, name)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.ImageURL == "" {
		return nil, nil
	}
	img := u.ImageURL
	return &img, nil
}

func (s *AccountService) session(u *domain.User, picture string) (*Session, error) {
	token, err := s.Tokens.Issue(u.ID, u.Name)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, Name: u.Name, Picture: picture}, nil
}
