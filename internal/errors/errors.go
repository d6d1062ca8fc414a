package errors

import (
	"errors"
	"net/http"
)

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
	Code       string // machine-readable error code, stable across releases
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

func IsStatus(err error, statusCode int) bool {
	var e *ErrorWithStatusCode
	if errors.As(err, &e) {
		return e.StatusCode == statusCode
	}
	return false
}

func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// Code extracts the machine-readable code, empty for plain errors.
func Code(err error) string {
	var e *ErrorWithStatusCode
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Taxonomy constructors. Every outcome the auth flows can surface to a
// client maps to exactly one of these, so handlers never invent codes.

func UserExists() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "User with email already exists", StatusCode: http.StatusConflict, Code: "user_exists"}
}

func UserNotFound() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "User not found", StatusCode: http.StatusNotFound, Code: "user_not_found"}
}

func InvalidCredentials() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Invalid email or password", StatusCode: http.StatusBadRequest, Code: "invalid_credentials"}
}

func AccountNotActivated() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Account not activated", StatusCode: http.StatusForbidden, Code: "account_not_activated"}
}

func AccountNotVerified() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Account email not verified", StatusCode: http.StatusForbidden, Code: "account_not_verified"}
}

func AlreadyActivated() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Account already activated", StatusCode: http.StatusConflict, Code: "already_activated"}
}

func InvalidToken() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Token is invalid", StatusCode: http.StatusUnauthorized, Code: "invalid_token"}
}

func TokenExpired() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Token expired", StatusCode: http.StatusUnauthorized, Code: "token_expired"}
}

func TokenRevoked() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Token has been revoked", StatusCode: http.StatusUnauthorized, Code: "token_revoked"}
}

func TokenRequired() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Access token required", StatusCode: http.StatusUnauthorized, Code: "token_required"}
}

func ResetLimitExceeded() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Too many password reset requests", StatusCode: http.StatusTooManyRequests, Code: "reset_limit_exceeded"}
}

func PasswordMismatch() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Passwords do not match", StatusCode: http.StatusBadRequest, Code: "password_mismatch"}
}
