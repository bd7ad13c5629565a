// Account HTTP handlers.
//
// This file exposes REST endpoints for user accounts:
//   - POST /emailsignup   (register with email and password)
//   - POST /emaillogin    (email login, returns a session token)
//   - POST /googlelogin   (Google ID token login, provisions on first use)
//   - POST /auth/google   (OAuth2 authorization-code exchange)
//   - GET  /search        (find users by email fragment)
//   - GET  /getImage      (profile image of a user by name)
//
// Validation and account failures keep the messages chat clients already
// display (e.g. "User already exists", "Password is wrong").
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-relay/internal/auth"
	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/http/middleware"
	"github.com/tbourn/go-chat-relay/internal/services"
	"github.com/tbourn/go-chat-relay/internal/utils"
)

// maxSearchLimit caps the optional limit query parameter of /search.
const maxSearchLimit = 100

//
// DTOs
//

// SignupRequest is the JSON payload for an email sign-up.
type SignupRequest struct {
	Name     string `json:"name" example:"alice"`
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"correct-horse"`
}

// LoginRequest is the JSON payload for an email login.
type LoginRequest struct {
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"correct-horse"`
}

// GoogleLoginRequest carries a Google ID token obtained by the client.
type GoogleLoginRequest struct {
	IDToken string `json:"idToken" example:"eyJhbGciOiJSUzI1NiIs..."`
}

// GoogleCodeRequest carries an OAuth2 authorization code (popup flow).
type GoogleCodeRequest struct {
	Code string `json:"code" example:"4/0AeaYSH..."`
}

// MessageResponse is a plain acknowledgement body.
type MessageResponse struct {
	Message string `json:"message" example:"User created successfully"`
}

// GoogleTokens is the token set returned by the code exchange.
type GoogleTokens struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

//
// Handlers
//

// EmailSignup godoc
// @ID          emailSignup
// @Summary     Register with email and password
// @Description Names need at least 3 characters and passwords at least 8.
// @Tags        Accounts
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SignupRequest  true  "Account details"
// @Success     200   {object}  handlers.MessageResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed or user already exists"
// @Failure     409   {object}  handlers.ErrorResponse  "Name already taken"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /emailsignup [post]
func (h *Handlers) EmailSignup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	err := h.accounts.Signup(c.Request.Context(), auth.SignupRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	switch {
	case err == nil:
		ok(c, http.StatusOK, MessageResponse{Message: "User created successfully"})
	case auth.IsValidationError(err), errors.Is(err, services.ErrUserExists):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrNameTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("signup failed")
		fail(c, http.StatusInternalServerError, ErrCodeSignupFailed, "Error creating user")
	}
}

// EmailLogin godoc
// @ID          emailLogin
// @Summary     Log in with email and password
// @Tags        Accounts
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  services.Session
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed, unknown user or wrong password"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /emaillogin [post]
func (h *Handlers) EmailLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	sess, err := h.accounts.Login(c.Request.Context(), auth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	switch {
	case err == nil:
		ok(c, http.StatusOK, sess)
	case auth.IsValidationError(err), errors.Is(err, services.ErrWrongPassword):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "The user doesn't exist")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("login failed")
		fail(c, http.StatusInternalServerError, ErrCodeLoginFailed, "Something went wrong")
	}
}

// GoogleLogin godoc
// @ID          googleLogin
// @Summary     Log in with a Google ID token
// @Description Creates the account on first use, named after the Google profile
// @Description with a random color/animal suffix.
// @Tags        Accounts
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.GoogleLoginRequest  true  "Google ID token"
// @Success     200   {object}  services.Session
// @Failure     400   {object}  handlers.ErrorResponse  "Google login failed"
// @Failure     503   {object}  handlers.ErrorResponse  "Google sign-in not configured"
// @Router      /googlelogin [post]
func (h *Handlers) GoogleLogin(c *gin.Context) {
	var req GoogleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.IDToken) == "" {
		fail(c, http.StatusBadRequest, ErrCodeGoogleFailed, services.ErrGoogleLogin.Error())
		return
	}

	sess, err := h.accounts.GoogleLogin(c.Request.Context(), req.IDToken)
	switch {
	case err == nil:
		ok(c, http.StatusOK, sess)
	case errors.Is(err, services.ErrGoogleDisabled):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		// The cause stays in the logs; clients get the generic message.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("google login rejected")
		fail(c, http.StatusBadRequest, ErrCodeGoogleFailed, services.ErrGoogleLogin.Error())
	}
}

// GoogleCode godoc
// @ID          googleCode
// @Summary     Exchange a Google authorization code
// @Description Uses the "postmessage" redirect of the popup flow.
// @Tags        Accounts
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.GoogleCodeRequest  true  "Authorization code"
// @Success     200   {object}  handlers.GoogleTokens
// @Failure     400   {object}  handlers.ErrorResponse  "Exchange failed"
// @Failure     503   {object}  handlers.ErrorResponse  "Google sign-in not configured"
// @Router      /auth/google [post]
func (h *Handlers) GoogleCode(c *gin.Context) {
	var req GoogleCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code required")
		return
	}

	tok, err := h.accounts.ExchangeCode(c.Request.Context(), req.Code)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrGoogleDisabled):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	default:
		middleware.LoggerFrom(c).Warn().Err(err).Msg("google code exchange failed")
		fail(c, http.StatusBadRequest, ErrCodeGoogleFailed, "Google code exchange failed")
		return
	}

	out := GoogleTokens{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if id, found := tok.Extra("id_token").(string); found {
		out.IDToken = id
	}
	ok(c, http.StatusOK, out)
}

// SearchUsers godoc
// @ID          searchUsers
// @Summary     Search users by email
// @Description Case-insensitive substring match on the email address.
// @Tags        Accounts
// @Produce     json
// @Param       query  query     string  false  "Email fragment"  example(alice)
// @Param       limit  query     int     false  "Maximum results"  minimum(1) maximum(100)
// @Success     200    {array}   domain.User
// @Failure     500    {object}  handlers.ErrorResponse  "Internal error"
// @Router      /search [get]
func (h *Handlers) SearchUsers(c *gin.Context) {
	limit := utils.LimitParam(c.Query("limit"), 0, maxSearchLimit)

	users, err := h.accounts.Search(c.Request.Context(), c.Query("query"), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	ok(c, http.StatusOK, users)
}

// GetImage godoc
// @ID          getImage
// @Summary     Profile image of a user
// @Description Returns the image URL as a JSON string, or null when the user
// @Description is unknown or has no image.
// @Tags        Accounts
// @Produce     json
// @Param       query  query     string  true  "User name"  example(alice)
// @Success     200    {string}  string  "Image URL or null"
// @Failure     500    {object}  handlers.ErrorResponse  "Internal error"
// @Router      /getImage [get]
func (h *Handlers) GetImage(c *gin.Context) {
	img, err := h.accounts.ImageURL(c.Request.Context(), c.Query("query"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, img)
}
