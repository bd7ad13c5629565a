package auth

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validation errors carry the messages the account endpoints return.
var (
	ErrNameTooShort     = errors.New("Name must be 3 characters long")
	ErrEmailEmpty       = errors.New("Email cannot be empty")
	ErrEmailInvalid     = errors.New("Email is invalid")
	ErrPasswordTooShort = errors.New("Password must be 8 characters long")
	ErrNameTooLong      = errors.New("Name must be at most 32 characters long")
	// bcrypt ignores input beyond 72 bytes.
	ErrPasswordTooLong  = errors.New("Password must be at most 72 characters long")
)

// SignupRequest is the payload of an email sign-up.
type SignupRequest struct {
	Name     string `json:"name"     validate:"min=3,max=32"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"min=8,max=72"`
}

// LoginRequest is the payload of an email login.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"min=8"`
}

// ValidateSignup checks fields in the order the client reports them.
func ValidateSignup(req SignupRequest) error {
	return firstFieldError(validate.Struct(req))
}

// ValidateLogin checks an email login payload.
func ValidateLogin(req LoginRequest) error {
	return firstFieldError(validate.Struct(req))
}

func firstFieldError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Name":
		if fe.Tag() == "max" {
			return ErrNameTooLong
		}
		return ErrNameTooShort
	case "Email":
		if fe.Tag() == "required" {
			return ErrEmailEmpty
		}
		return ErrEmailInvalid
	case "Password":
		if fe.Tag() == "max" {
			return ErrPasswordTooLong
		}
		return ErrPasswordTooShort
	}
	return err
}

// IsValidationError reports whether err is one of the field validation
// errors above.
func IsValidationError(err error) bool {
	for _, v := range []error{
		ErrNameTooShort, ErrNameTooLong,
		ErrEmailEmpty, ErrEmailInvalid,
		ErrPasswordTooShort, ErrPasswordTooLong,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
