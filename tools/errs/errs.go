// Package errs defines the error taxonomy shared by the REST surface and the
// live channel. Every failure the server reports is a CodeError; the code maps
// directly onto an HTTP status class.
package errs

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	CodeValidation     = http.StatusBadRequest
	CodeAuthentication = http.StatusUnauthorized
	CodeAuthorization  = http.StatusForbidden
	CodeNotFound       = http.StatusNotFound
	CodeStore          = http.StatusInternalServerError
)

// Sentinels used across the codebase. Membership failures use the same
// wording whether the conversation is missing or the caller is an outsider,
// so the response never reveals whether the resource exists.
var (
	ErrValidation     = NewCodeError(CodeValidation, "invalid request")
	ErrAuthentication = NewCodeError(CodeAuthentication, "authentication failed")
	ErrAuthorization  = NewCodeError(CodeAuthorization, "not authorized")
	ErrNotFound       = NewCodeError(CodeNotFound, "not found")
	ErrStore          = NewCodeError(CodeStore, "storage failure")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	parts := []string{strconv.Itoa(e.Code), e.Msg}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	return strings.Join(parts, " ")
}

// WithDetail returns a copy carrying extra detail. The original sentinel is
// never mutated, so errors.Is against it keeps working.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Is matches by code, so a detailed copy still satisfies its sentinel.
func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !stderrors.As(target, &ce) {
		return false
	}
	return e.Code == ce.Code
}

// Wrap annotates a low-level cause (driver errors and the like) with a stack.
func Wrap(err error) error {
	return errors.WithStack(err)
}

// WrapMsg annotates a cause with a message and a stack.
func WrapMsg(err error, msg string) error {
	return errors.WithMessage(err, msg)
}

// WrapStore converts an unexpected persistence failure into the generic
// store error. The cause text is kept in the detail for logs; clients only
// ever see the generic code and message.
func WrapStore(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithMessage(ErrStore.WithDetail(err.Error()), msg)
}

// HTTPStatus resolves the status for an arbitrary error. Anything that is not
// a CodeError is treated as a server-side failure.
func HTTPStatus(err error) int {
	var ce *CodeError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return http.StatusInternalServerError
}

// AsCodeError normalizes err for the REST surface.
func AsCodeError(err error) *CodeError {
	var ce *CodeError
	if stderrors.As(err, &ce) {
		return ce
	}
	return ErrStore
}
