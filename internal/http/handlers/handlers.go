// Package handlers provides HTTP handler implementations for the public API.
//
// This file declares the service contracts the handlers depend on and the
// Handlers type that groups the account and history endpoints. Handlers are
// transport-thin: they bind input, call application services, and translate
// results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/tbourn/go-chat-relay/internal/auth"
	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/services"
)

//
// Service contracts (context-aware)
//

// AccountService defines the account operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AccountService interface {
	// Signup validates and registers an email account.
	Signup(ctx context.Context, req auth.SignupRequest) error
	// Login checks email credentials and issues a session.
	Login(ctx context.Context, req auth.LoginRequest) (*services.Session, error)
	// GoogleLogin verifies a Google ID token and issues a session.
	GoogleLogin(ctx context.Context, idToken string) (*services.Session, error)
	// ExchangeCode trades a Google authorization code for OAuth2 tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	// FindByName resolves a display name; a miss is services.ErrUserNotFound.
	FindByName(ctx context.Context, name string) (*domain.User, error)
	// Search lists users whose email contains query.
	Search(ctx context.Context, query string, limit int) ([]domain.User, error)
	// ImageURL returns the named user's image, or nil.
	ImageURL(ctx context.Context, name string) (*string, error)
}

// HistoryService defines conversation history retrieval.
type HistoryService interface {
	// Conversation returns messages between two user IDs, oldest first.
	Conversation(ctx context.Context, a, b string) ([]domain.Message, error)
	// Stats returns the row count and latest update time of a conversation.
	Stats(ctx context.Context, a, b string) (int64, *time.Time, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for accounts and message history.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	accounts AccountService
	history  HistoryService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(accounts AccountService, history HistoryService) *Handlers {
	return &Handlers{accounts: accounts, history: history}
}

var (
	_ AccountService = (*services.AccountService)(nil)
	_ HistoryService = (*services.HistoryService)(nil)
)
