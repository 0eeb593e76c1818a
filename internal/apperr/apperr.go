// Package apperr defines the caller-facing error taxonomy shared by the REST
// handlers and the real-time gateway.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to clients.
const (
	CodeNoToken          = "AUTH_NO_TOKEN"
	CodeInvalidToken     = "AUTH_INVALID_TOKEN"
	CodeUserNotFound     = "AUTH_USER_NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeChatNotFound     = "CHAT_NOT_FOUND"
	CodeClientNotFound   = "CLIENT_NOT_FOUND"
	CodeChatNotClaimable = "CHAT_NOT_CLAIMABLE"
	CodeValidation       = "VALIDATION_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
)

// AppError carries a stable code, a client-safe message and the HTTP status
// the REST layer should answer with. Err is for logs only.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
	Details map[string]any
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError.
func New(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

func NoToken() *AppError {
	return New(CodeNoToken, "authentication token not provided", http.StatusUnauthorized, nil)
}

func InvalidToken(err error) *AppError {
	return New(CodeInvalidToken, "invalid or expired token", http.StatusUnauthorized, err)
}

func UserNotFound() *AppError {
	return New(CodeUserNotFound, "user not found", http.StatusUnauthorized, nil)
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden, nil)
}

func ChatNotFound() *AppError {
	return New(CodeChatNotFound, "chat not found", http.StatusNotFound, nil)
}

func ClientNotFound() *AppError {
	return New(CodeClientNotFound, "client not found", http.StatusNotFound, nil)
}

// NotClaimable reports a lost or invalid claim together with the chat's
// current status so the caller can reconcile without retrying.
func NotClaimable(status string) *AppError {
	e := New(CodeChatNotClaimable,
		fmt.Sprintf("chat is not available for claiming. Current status: %s", status),
		http.StatusConflict, nil)
	e.Details = map[string]any{"status": status}
	return e
}

func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest, nil)
}

func RateLimited() *AppError {
	return New(CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests, nil)
}

func Internal(message string, err error) *AppError {
	return New(CodeInternal, message, http.StatusInternalServerError, err)
}

// As extracts an AppError from err. Errors outside the taxonomy are reported
// as INTERNAL_ERROR wrapping the original.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal server error", err)
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
