package rerror

import (
	"errors"
	"fmt"
)

// Error extends the standard error with a Code and an optional parent,
// mirroring nabbar-golib's liberr.Error but shrunk to what this gateway
// actually needs: one code per error, a single parent link (not a full
// hierarchy), and Unwrap support for errors.Is/errors.As.
type Error interface {
	error
	Code() Code
	Unwrap() error
}

type codedError struct {
	code   Code
	msg    string
	parent error
}

func (e *codedError) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.parent)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *codedError) Code() Code     { return e.code }
func (e *codedError) Unwrap() error  { return e.parent }

// New builds an Error with the given code and message.
func New(code Code, msg string) Error {
	return &codedError{code: code, msg: msg}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) Error {
	return &codedError{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and msg to parent, preserving it for errors.Unwrap.
func Wrap(code Code, msg string, parent error) Error {
	return &codedError{code: code, msg: msg, parent: parent}
}

// Is reports whether err is an Error (possibly wrapped).
func Is(err error) bool {
	var e Error
	return errors.As(err, &e)
}

// GetCode returns the Code of err if it is (or wraps) an Error, else CodeUnknown.
func GetCode(err error) Code {
	var e Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return CodeUnknown
}

// HasCode reports whether err or any of its wrapped parents carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var e Error
		if errors.As(err, &e) {
			if e.Code() == code {
				return true
			}
			err = e.Unwrap()
			continue
		}
		return false
	}
	return false
}
