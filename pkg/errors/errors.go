package errors

import (
	stderrors "errors"
	"fmt"
)

// ========== 错误码常量定义 ==========

// CodeSuccess 成功码
const (
	CodeSuccess = 200
)

// HTTP层错误码 (400-599)
const (
	CodeInvalidParam = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeServerError  = 500
	CodeBadGateway   = 502
)

// ========== 业务错误类型 ==========

// Kind 业务错误分类，调用方据此区分"日期格式错误"与"日期不可用"等情况
type Kind string

const (
	KindInvalidDate         Kind = "invalid_date"
	KindInvalidRange        Kind = "invalid_range"
	KindOverlap             Kind = "overlap"
	KindNotFound            Kind = "not_found"
	KindInvalidParam        Kind = "invalid_param"
	KindConflict            Kind = "conflict"
	KindExternalFetchFailed Kind = "external_fetch_failed"
	KindPersistence         Kind = "persistence_failure"
)

// AppError 带分类的业务错误
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建业务错误
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap 包装底层错误
func Wrap(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// KindOf 返回错误分类，非业务错误返回空字符串
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// CodeOf 业务错误分类到响应码的映射
func CodeOf(kind Kind) int {
	switch kind {
	case KindInvalidDate, KindInvalidRange, KindInvalidParam:
		return CodeInvalidParam
	case KindNotFound:
		return CodeNotFound
	case KindOverlap, KindConflict:
		return CodeConflict
	case KindExternalFetchFailed:
		return CodeBadGateway
	default:
		return CodeServerError
	}
}
