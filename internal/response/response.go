// Package response writes the {code, message, data} envelope used by every
// JSON endpoint.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"classwatch/internal/apperr"
)

// Response is the envelope. Code 0 means success.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error codes.
const (
	CodeOK               = 0
	CodeValidationFailed = 40001
	CodeInvalidArgument  = 40002
	CodeBodyTooLarge     = 41300
	CodeUnauthorized     = 40100
	CodeForbidden        = 40300
	CodeNotFound         = 40400
	CodeInvalidState     = 40900
	CodeRateLimited      = 42900
	CodeInternal         = 50000
	CodeDeviceAccess     = 50300
)

// OK 200
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeOK, Message: "success", Data: data})
}

// Created 201
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: CodeOK, Message: "success", Data: data})
}

// Error writes an error envelope.
func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, Response{Code: code, Message: message})
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, Response{Code: code, Message: message})
}

// Unauthorized 401
func Unauthorized(c *gin.Context, message string) {
	Abort(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// InternalError 500
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// Status maps an error kind to its HTTP status and envelope code.
func Status(err error) (int, int) {
	switch {
	case errors.Is(err, apperr.ErrValidationFailed):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest, CodeInvalidArgument
	case errors.Is(err, apperr.ErrInvalidState):
		return http.StatusConflict, CodeInvalidState
	case errors.Is(err, apperr.ErrDeviceAccessFailed):
		return http.StatusServiceUnavailable, CodeDeviceAccess
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// FromError writes the envelope for err. Unexpected errors are attached to
// the context for the request logger and answered with a generic message.
func FromError(c *gin.Context, err error) {
	status, code := Status(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		InternalError(c)
		return
	}
	Error(c, status, code, err.Error())
}
