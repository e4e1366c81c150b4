package models

import (
	"errors"
	"fmt"
	"net/http"

	"solana-ledger-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorCode represents standardized error codes. Codes are logged and counted;
// the client only ever sees the status code and the message string.
type ErrorCode string

const (
	// Validation errors
	ErrorCodeInvalidAddress ErrorCode = "INVALID_ADDRESS"

	// RPC errors
	ErrorCodeRPCUnavailable ErrorCode = "RPC_UNAVAILABLE"
	ErrorCodeRPCTimeout     ErrorCode = "RPC_TIMEOUT"

	// Routing errors
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"

	// Internal errors
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatusCode returns the HTTP status code for each error type
func (e ErrorCode) HTTPStatusCode() int {
	switch e {
	case ErrorCodeInvalidAddress:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeRPCUnavailable, ErrorCodeRPCTimeout, ErrorCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AppError represents an application error with context
type AppError struct {
	Code       ErrorCode
	Message    string
	Cause      error
	Context    map[string]interface{}
	StatusCode int
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: code.HTTPStatusCode(),
		Context:    make(map[string]interface{}),
	}
}

// NewAppErrorWithCause creates a new application error with underlying cause
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	appErr := NewAppError(code, message)
	appErr.Cause = cause
	return appErr
}

// NewInvalidAddressError creates the validation error for an undecodable address
func NewInvalidAddressError(raw string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorCodeInvalidAddress, InvalidAddressMessage, cause).
		WithContext("address", raw)
}

// NewRPCError creates an upstream error whose message is the upstream error text
func NewRPCError(cause error, timeout bool) *AppError {
	code := ErrorCodeRPCUnavailable
	if timeout {
		code = ErrorCodeRPCTimeout
	}
	message := "upstream ledger request failed"
	if cause != nil && cause.Error() != "" {
		message = cause.Error()
	}
	return NewAppErrorWithCause(code, message, cause)
}

// HandleError logs err and writes it as a single JSON string with the mapped status code
func HandleError(c *gin.Context, err error, log *logger.Logger) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = NewAppErrorWithCause(ErrorCodeInternalError, "Internal server error", err)
	}

	if log == nil {
		log = logger.GetLogger().WithContext(c.Request.Context())
	}

	logFields := []zap.Field{
		zap.String("error_code", string(appErr.Code)),
		zap.String("error_message", appErr.Message),
		zap.Int("status_code", appErr.StatusCode),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("client_ip", c.ClientIP()),
	}
	if len(appErr.Context) > 0 {
		logFields = append(logFields, zap.Any("error_context", appErr.Context))
	}
	if appErr.Cause != nil {
		logFields = append(logFields, zap.Error(appErr.Cause))
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Application error", logFields...)
	} else {
		log.Warn("Client error", logFields...)
	}

	c.AbortWithStatusJSON(appErr.StatusCode, appErr.Message)
}
