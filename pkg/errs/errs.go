// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs defines the failure taxonomy of the SDK.
//
// Three disjoint classes exist:
//   - Terminal failures: surfaced to handler code as *TerminalError. The
//     invocation ends with an output failure and is never retried.
//   - Retryable failures: any other error escaping handler code. The engine
//     reports them to the runtime, which retries the whole invocation.
//   - Protocol failures: journal mismatches, unknown messages and other
//     engine-level violations. Reported with a dedicated code.
package errs

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Code is a failure code carried on terminal failures and error messages.
// Values below 17 follow google.golang.org/grpc/codes.
type Code uint32

const (
	CodeOK                 = Code(codes.OK)
	CodeCancelled          = Code(codes.Canceled)
	CodeUnknown            = Code(codes.Unknown)
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeDeadlineExceeded   = Code(codes.DeadlineExceeded)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeInternal           = Code(codes.Internal)
	CodeUnimplemented      = Code(codes.Unimplemented)
	CodeUnavailable        = Code(codes.Unavailable)

	// CodeJournalMismatch reports replay divergence: the handler requested an
	// operation that does not match the journalled entry at the same index.
	CodeJournalMismatch Code = 32
)

// String returns the name of the code, falling back to grpc code names.
func (c Code) String() string {
	if c == CodeJournalMismatch {
		return "JOURNAL_MISMATCH"
	}
	return codes.Code(c).String()
}

// TerminalError ends the invocation with a recorded failure. Handler code may
// both raise and observe terminal errors; awaiting a deferred result that was
// completed with a failure yields one.
type TerminalError struct {
	Code    Code
	Message string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewTerminalError creates a terminal failure with the given code.
func NewTerminalError(code Code, format string, args ...any) *TerminalError {
	return &TerminalError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsTerminal extracts a *TerminalError from err, unwrapping as needed.
func AsTerminal(err error) (*TerminalError, bool) {
	var te *TerminalError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsTerminal reports whether err is (or wraps) a terminal failure.
func IsTerminal(err error) bool {
	_, ok := AsTerminal(err)
	return ok
}

// ProtocolViolation is an engine-level failure: the message stream or the
// journal broke an invariant. Never surfaced to handler code.
type ProtocolViolation struct {
	Code    Code
	Message string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation [%s]: %s", e.Code, e.Message)
}

// NewProtocolViolation creates a protocol failure, defaulting to INTERNAL.
func NewProtocolViolation(code Code, format string, args ...any) *ProtocolViolation {
	if code == CodeOK {
		code = CodeInternal
	}
	return &ProtocolViolation{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsProtocolViolation extracts a *ProtocolViolation from err.
func AsProtocolViolation(err error) (*ProtocolViolation, bool) {
	var pv *ProtocolViolation
	if errors.As(err, &pv) {
		return pv, true
	}
	return nil, false
}

// ErrClosed is delivered to handler code resumed after the engine closed, so
// that blocked awaits unwind instead of hanging.
var ErrClosed = NewTerminalError(CodeUnavailable, "invocation closed")

// Wrap wraps an error with a message prefix.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
