// Package nvcerr 定义 nvc 所有组件共享的错误分类。
package nvcerr

import (
	"errors"
	"fmt"
)

// Kind 是封闭的错误类别集合。
type Kind int

const (
	Unknown Kind = iota
	SpecifierUnparseable
	NoVersionConfigured
	NoMatchingVersion
	AliasNotFound
	RemoteVersionNotFound
	VersionNotInstalled
	NetworkError
	ArchiveError
	FilesystemError
	InvalidInput
	ConfigInvalid
)

var kindNames = map[Kind]string{
	Unknown:               "unknown",
	SpecifierUnparseable:  "specifier unparseable",
	NoVersionConfigured:   "no version configured",
	NoMatchingVersion:     "no matching version",
	AliasNotFound:         "alias not found",
	RemoteVersionNotFound: "remote version not found",
	VersionNotInstalled:   "version not installed",
	NetworkError:          "network error",
	ArchiveError:          "archive error",
	FilesystemError:       "filesystem error",
	InvalidInput:          "invalid input",
	ConfigInvalid:         "invalid configuration",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error 携带错误类别、描述以及被包装的底层错误。
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is 只比较错误类别，因此 errors.Is(err, nvcerr.New(kind, "")) 可用于判定类别。
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New 创建指定类别的错误。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf 创建带格式化描述的错误。
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 将底层错误包装为指定类别；err 为 nil 时返回 nil。
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

// Wrapf 与 Wrap 相同，但描述支持格式化。
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// KindOf 返回错误链中第一个 *Error 的类别，没有时返回 Unknown。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsKind 判断错误链中是否包含指定类别。
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
