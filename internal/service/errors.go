package service

import (
	"errors"
	"fmt"
)

// ErrorKind 服务层错误类型
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindPermission
	KindReferentialIntegrity
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindReferentialIntegrity:
		return "referential_integrity"
	}
	return "unknown"
}

// Error 带类型的业务错误,调用方通过 errors.As 或 Is* 函数判断
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is 同类型错误视为相等,便于 errors.Is(err, ErrPermission) 判断
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// 哨兵错误, 仅用于 errors.Is 比较
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrPermission           = &Error{Kind: KindPermission}
	ErrReferentialIntegrity = &Error{Kind: KindReferentialIntegrity}
)

func validationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func permissionError(format string, args ...interface{}) error {
	return &Error{Kind: KindPermission, Message: fmt.Sprintf(format, args...)}
}

func referentialError(format string, args ...interface{}) error {
	return &Error{Kind: KindReferentialIntegrity, Message: fmt.Sprintf(format, args...)}
}

// KindOf 返回错误类型,非业务错误返回 0
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsValidation 是否为校验错误
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound 是否为未找到错误
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsPermission 是否为权限错误
func IsPermission(err error) bool { return KindOf(err) == KindPermission }

// IsReferentialIntegrity 是否为引用完整性错误
func IsReferentialIntegrity(err error) bool { return KindOf(err) == KindReferentialIntegrity }
