package service

import (
	"errors"
	"fmt"
)

// 错误分类：
//   ValidationError / ConflictError  同步拒绝，不重试
//   ConnectivityError                有界退避重试
//   CredentialError                  致命，不重试
//   ExecutionError                   记录到所属实体上，不重试

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string {
	return e.Msg
}

func NewConflictError(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

type ConnectivityError struct {
	Endpoint string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("endpoint %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

type CredentialError struct {
	Msg string
	Err error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

type ExecutionError struct {
	Cmd    string
	Output string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("command failed: %v, output: %s", e.Err, e.Output)
	}
	return fmt.Sprintf("command failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsRetryable 只有连通性错误值得重试
func IsRetryable(err error) bool {
	var connErr *ConnectivityError
	return errors.As(err, &connErr)
}

func IsConflict(err error) bool {
	var conflictErr *ConflictError
	return errors.As(err, &conflictErr)
}

func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func IsCredential(err error) bool {
	var credErr *CredentialError
	return errors.As(err, &credErr)
}
