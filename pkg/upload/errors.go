// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package upload

// Error codes for upload operations
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota
	ErrCodeNotFound
	ErrCodeInvalidArgument
	ErrCodeInvalidState
	ErrCodeMissingPart
	ErrCodeETagMismatch
	ErrCodeSizeMismatch
	ErrCodeQuotaExceeded
	ErrCodeInternalError
)

// String returns the wire identifier of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeInvalidState:
		return "invalid_state"
	case ErrCodeMissingPart:
		return "missing_part"
	case ErrCodeETagMismatch:
		return "etag_mismatch"
	case ErrCodeSizeMismatch:
		return "size_mismatch"
	case ErrCodeQuotaExceeded:
		return "quota_exceeded"
	default:
		return "internal_error"
	}
}

// Error represents an upload service error with an error code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
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
