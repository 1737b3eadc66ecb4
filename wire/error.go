// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of wire error.
type ErrorCode int

// These constants are used to identify a specific MessageError.
const (
	// ErrWrongNetwork indicates a message header carried a network magic
	// other than the one the reader expects.
	ErrWrongNetwork ErrorCode = iota

	// ErrChecksumMismatch indicates the checksum in a message header does
	// not match the double sha256 of the received payload.
	ErrChecksumMismatch

	// ErrPayloadTooLarge indicates a payload exceeds either the overall
	// maximum or the maximum for its message type.
	ErrPayloadTooLarge

	// ErrCommandTooLong indicates a command does not fit in the fixed
	// size command field of the header.
	ErrCommandTooLong

	// ErrMalformedCommand indicates a header command is not valid utf8.
	ErrMalformedCommand

	// ErrMalformedPayload indicates a payload could not be parsed into the
	// message its command names.
	ErrMalformedPayload

	// ErrNonCanonicalVarInt indicates a variable length integer was not
	// encoded in its shortest form.
	ErrNonCanonicalVarInt
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrWrongNetwork:       "ErrWrongNetwork",
	ErrChecksumMismatch:   "ErrChecksumMismatch",
	ErrPayloadTooLarge:    "ErrPayloadTooLarge",
	ErrCommandTooLong:     "ErrCommandTooLong",
	ErrMalformedCommand:   "ErrMalformedCommand",
	ErrMalformedPayload:   "ErrMalformedPayload",
	ErrNonCanonicalVarInt: "ErrNonCanonicalVarInt",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// MessageError describes an issue with a message.
// An example of some potential issues are messages from the wrong bitcoin
// network, invalid commands, mismatched checksums, and exceeding max payloads.
//
// This provides a mechanism for the caller to type assert the error to
// differentiate between general io errors such as io.EOF and issues that
// resulted from malformed messages.
type MessageError struct {
	Func        string    // Function name
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e *MessageError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%v: %v", e.Func, e.Description)
	}
	return e.Description
}

// messageError creates an error for the given function and description.
func messageError(f string, c ErrorCode, desc string) *MessageError {
	return &MessageError{Func: f, ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether or not err is, or wraps, a MessageError with
// the provided error code.
func IsErrorCode(err error, c ErrorCode) bool {
	var merr *MessageError
	return errors.As(err, &merr) && merr.ErrorCode == c
}
