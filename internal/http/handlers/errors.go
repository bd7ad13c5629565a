package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on the code;
// the message is for display only.
//
// The generic codes follow the HTTP status. The endpoint codes mark failures
// of one operation whose message is deliberately vague ("Something went
// wrong") so clients can still tell them apart.
//
// Middleware answers with "rate_limited" (429) and "internal_error" (panic
// recovery) using the same envelope.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	// Google sign-in is not configured on this server.
	ErrCodeUnavailable = "unavailable"

	ErrCodeSignupFailed  = "signup_failed"
	ErrCodeLoginFailed   = "login_failed"
	ErrCodeGoogleFailed  = "google_login_failed"
	ErrCodeSearchFailed  = "search_failed"
	ErrCodeHistoryFailed = "history_failed"
)
