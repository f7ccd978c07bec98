// Package apperr 定义 API 边界使用的错误分类。
//
// 每个错误携带面向用户的消息与 HTTP 状态码；内部原因只用于日志，不会返回给客户端。
package apperr

import (
	"errors"
	"net/http"
)

// Kind 错误类别。
type Kind string

const (
	KindValidation         Kind = "validation"
	KindBadRequest         Kind = "bad_request"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindNotFound           Kind = "not_found"
	KindRateLimited        Kind = "rate_limited"
	KindUnexpected         Kind = "unexpected"
)

// Error 是带状态码的应用错误。
type Error struct {
	Kind       Kind
	Message    string              // 面向用户的消息
	StatusCode int                 // HTTP 状态码
	Fields     map[string][]string // 字段级校验消息（仅 Validation）
	RetryAfter int                 // 重试等待秒数（仅 RateLimited）
	Err        error               // 内部原因，仅记录日志
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按类别比较，使 errors.Is(err, apperr.ErrNotFound) 对任意 NotFound 生效。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidJSON = &Error{
		Kind:       KindBadRequest,
		Message:    "invalid JSON payload",
		StatusCode: http.StatusBadRequest,
	}
	ErrInvalidCredentials = &Error{
		Kind:       KindInvalidCredentials,
		Message:    "invalid credentials",
		StatusCode: http.StatusUnauthorized,
	}
	ErrUnauthenticated = &Error{
		Kind:       KindUnauthenticated,
		Message:    "unauthenticated",
		StatusCode: http.StatusUnauthorized,
	}
	ErrNotFound = &Error{
		Kind:       KindNotFound,
		Message:    "task not found",
		StatusCode: http.StatusNotFound,
	}
	ErrValidation = &Error{
		Kind:       KindValidation,
		Message:    "the given data was invalid",
		StatusCode: http.StatusUnprocessableEntity,
	}
	ErrRateLimited = &Error{
		Kind:       KindRateLimited,
		Message:    "too many attempts",
		StatusCode: http.StatusTooManyRequests,
	}
	ErrUnexpected = &Error{
		Kind:       KindUnexpected,
		Message:    "an unexpected error occurred, please try again",
		StatusCode: http.StatusInternalServerError,
	}
)

// Validation 创建字段级校验错误。
func Validation(message string, fields map[string][]string) *Error {
	if message == "" {
		message = ErrValidation.Message
	}
	return &Error{
		Kind:       KindValidation,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Fields:     fields,
	}
}

// FieldError 创建只包含单个字段消息的校验错误。
func FieldError(field, msg string) *Error {
	return Validation("", map[string][]string{field: {msg}})
}

// RateLimited 创建限流错误，retryAfter 单位为秒。
func RateLimited(message string, retryAfter int) *Error {
	if message == "" {
		message = ErrRateLimited.Message
	}
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &Error{
		Kind:       KindRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

// Unexpected 包装内部错误，对外只暴露通用消息。
func Unexpected(message string, err error) *Error {
	if message == "" {
		message = ErrUnexpected.Message
	}
	return &Error{
		Kind:       KindUnexpected,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// From 将任意错误转换为 *Error，未知错误视为 Unexpected。
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Unexpected("", err)
}

// StatusCode 返回错误对应的 HTTP 状态码。
func StatusCode(err error) int {
	return From(err).StatusCode
}
