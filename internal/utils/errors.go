package utils

import (
	"fmt"
	"net/http"
)

const (
	ErrCodeInvalidInput       = 1001
	ErrCodeNotFound           = 1002
	ErrCodeAlreadyExists      = 1003
	ErrCodeInternalError      = 1004
	ErrCodeValidationFailed   = 1005
	ErrCodeUnauthorized       = 1006
	ErrCodeConflict           = 1008
	ErrCodeServiceUnavailable = 1010
	ErrCodeTimeout            = 1011
)

type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error %d: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("error %d: %s", e.Code, e.Message)
}

func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func GetHTTPStatusCode(errCode int) int {
	switch errCode {
	case ErrCodeInvalidInput, ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeAlreadyExists, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
