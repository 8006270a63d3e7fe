package core

import (
	"errors"
	"fmt"
)

// UnknownOperationCodeError is returned when a byte matches no entry in the
// operation code table.
type UnknownOperationCodeError struct {
	Code byte
}

func (e *UnknownOperationCodeError) Error() string {
	return fmt.Sprintf("unknown operation code: 0x%02x", e.Code)
}

// InvalidOperationEncodingError reports a malformed record: a tag that does
// not belong to the decoder invoked, a declared length larger than what is
// left in the buffer, or trailing bytes after a record without value payload.
type InvalidOperationEncodingError struct {
	Op     OperationCode // decoder that rejected the buffer
	Offset int           // position in the buffer where decoding stopped
	Reason string
	Err    error
}

func (e *InvalidOperationEncodingError) Error() string {
	msg := fmt.Sprintf("invalid %s encoding at offset %d: %s", e.Op, e.Offset, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidOperationEncodingError) Unwrap() error {
	return e.Err
}

// OperationKeyMismatchError is returned when operations bound to different
// keys are folded together. It signals a caller bug, not bad data.
type OperationKeyMismatchError struct {
	Key      any
	OtherKey any
}

func (e *OperationKeyMismatchError) Error() string {
	return fmt.Sprintf("operation key mismatch: %v vs %v", e.Key, e.OtherKey)
}

// IsUnknownOperationCode checks if an error is (or wraps) an UnknownOperationCodeError.
func IsUnknownOperationCode(err error) bool {
	var target *UnknownOperationCodeError
	return errors.As(err, &target)
}

// IsInvalidOperationEncoding checks if an error is (or wraps) an InvalidOperationEncodingError.
func IsInvalidOperationEncoding(err error) bool {
	var target *InvalidOperationEncodingError
	return errors.As(err, &target)
}

// IsOperationKeyMismatch checks if an error is (or wraps) an OperationKeyMismatchError.
func IsOperationKeyMismatch(err error) bool {
	var target *OperationKeyMismatchError
	return errors.As(err, &target)
}
