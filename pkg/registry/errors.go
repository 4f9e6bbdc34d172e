// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package registry

// ErrorCode classifies registry failures for transport mapping.
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota
	ErrCodeNotFound
	ErrCodeInvalidArgument
	ErrCodeInvalidState
	ErrCodeTokenInvalid
	ErrCodeInternalError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeInvalidState:
		return "invalid_state"
	case ErrCodeTokenInvalid:
		return "token_invalid"
	case ErrCodeInternalError:
		return "internal_error"
	default:
		return "none"
	}
}

// Error is a typed registry error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
