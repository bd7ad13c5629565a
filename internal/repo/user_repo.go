// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// Error semantics:
//   - Lookups that match nothing return ErrNotFound (gorm.ErrRecordNotFound).
//   - Unique violations on users.name / users.email are reported as
//     ErrDuplicateName / ErrDuplicateEmail so callers can tell them apart.
//   - Any other DB error is propagated unchanged.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

var (
	// ErrDuplicate indicates a unique constraint violation on an unknown column.
	ErrDuplicate = errors.New("duplicate")
	// ErrDuplicateName indicates the user name is already taken.
	ErrDuplicateName = errors.New("duplicate user name")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("duplicate user email")
)

// NewUser carries the fields required to insert a user row.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	ImageURL     string
}

// CreateUser inserts a user with a random UUID and UTC timestamps.
func CreateUser(ctx context.Context, db *gorm.DB, in NewUser) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		ImageURL:     in.ImageURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, classifyUnique(err)
	}
	return u, nil
}

// FindUserByName returns the user with the exact name or ErrNotFound.
func FindUserByName(ctx context.Context, db *gorm.DB, name string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("name = ?", name).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByEmail returns the user with the given (already normalized) email
// or ErrNotFound.
func FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// SearchUsersByEmail returns users whose email contains query, case-insensitively,
// ordered by email. LIKE wildcards in query are matched literally. A limit
// <= 0 returns every match.
func SearchUsersByEmail(ctx context.Context, db *gorm.DB, query string, limit int) ([]domain.User, error) {
	var out []domain.User
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	q := db.WithContext(ctx).
		Where(`LOWER(email) LIKE ? ESCAPE '\'`, pattern).
		Order("email ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// escapeLike escapes the LIKE metacharacters using backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// classifyUnique maps unique violations to the repo's duplicate errors.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func classifyUnique(err error) error {
	low := strings.ToLower(err.Error())
	isUnique := errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
	if !isUnique {
		return err
	}
	switch {
	case strings.Contains(low, "users.email"):
		return ErrDuplicateEmail
	case strings.Contains(low, "users.name"):
		return ErrDuplicateName
	default:
		return ErrDuplicate
	}
}
