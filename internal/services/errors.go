// Package services defines the business logic for accounts and conversation
// history. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Account errors.
var (
	// ErrUserNotFound indicates that no user carries the requested name or
	// email. The relay treats it as a resolution miss.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned on sign-up when the email is already
	// registered.
	ErrUserExists = errors.New("User already exists")

	// ErrNameTaken is returned on sign-up when the display name is already in
	// use by another account.
	ErrNameTaken = errors.New("name already taken")

	// ErrWrongPassword is returned by email login when the password does not
	// match the stored hash.
	ErrWrongPassword = errors.New("Password is wrong")

	// ErrGoogleLogin covers every Google sign-in failure: invalid token,
	// unverified email or a storage error while provisioning the account.
	ErrGoogleLogin = errors.New("Google login failed. Try again")

	// ErrGoogleDisabled is returned when no Google client is configured.
	ErrGoogleDisabled = errors.New("google sign-in is not configured")
)

// History errors.
var (
	// ErrEmptyContent is returned when a message body is empty.
	ErrEmptyContent = errors.New("content is empty")
)
