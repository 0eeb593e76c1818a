// Package response renders the REST envelope shared by every endpoint.
package response

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/apperr"
)

type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Message   string     `json:"message,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp string     `json:"timestamp"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func Success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data, Timestamp: now()})
}

// SuccessMessage answers 200 with a message and optional data.
func SuccessMessage(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data, Message: message, Timestamp: now()})
}

func Created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, Response{Success: true, Data: data, Timestamp: now()})
}

// Error renders err. Validation failures become VALIDATION_ERROR, AppErrors
// keep their status and code, anything else is a generic INTERNAL_ERROR whose
// cause is never sent to the client.
func Error(c echo.Context, err error) error {
	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusBadRequest, Response{
			Success:   false,
			Timestamp: now(),
			Error:     &ErrorInfo{Code: apperr.CodeValidation, Message: ValidationMessage(validationErr)},
		})
	}

	appErr := apperr.As(err)
	info := &ErrorInfo{Code: appErr.Code, Message: appErr.Message}
	if appErr.Code == apperr.CodeInternal {
		info.Message = "An unexpected error occurred"
	}
	if len(appErr.Details) > 0 {
		info.Details = appErr.Details
	}
	return c.JSON(appErr.Status, Response{Success: false, Timestamp: now(), Error: info})
}

// ValidationMessage describes the first failed field.
func ValidationMessage(errs validator.ValidationErrors) string {
	for _, err := range errs {
		field := strings.ToLower(err.Field()[:1]) + err.Field()[1:]
		switch err.Tag() {
		case "required":
			return field + " is required"
		case "max":
			return field + " must be at most " + err.Param() + " characters"
		case "mongodb":
			return field + " must be a valid id"
		default:
			return field + " is invalid"
		}
	}
	return "Invalid input data"
}

// ErrorHandler is echo's HTTPErrorHandler. Handlers return errors and this
// renders them; internal errors are logged with their cause.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok {
				msg = s
			}
			err = apperr.New(codeForStatus(he.Code), msg, he.Code, he.Internal)
		}

		appErr := apperr.As(err)
		if appErr.Status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		if rerr := Error(c, err); rerr != nil {
			log.Warn("failed to write error response", zap.Error(rerr))
		}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return apperr.CodeValidation
	case http.StatusUnauthorized:
		return apperr.CodeInvalidToken
	case http.StatusForbidden:
		return apperr.CodeForbidden
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return apperr.CodeRateLimited
	}
	return apperr.CodeInternal
}
