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

package protocol

import (
	"bytes"

	"google.golang.org/protobuf/encoding/protowire"

	"durable-sdk/pkg/errs"
)

// ResultKind discriminates the result oneof carried on entry and completion
// messages.
type ResultKind uint8

const (
	// ResultNone means the oneof is unset: the entry has no result yet.
	ResultNone ResultKind = iota
	ResultEmpty
	ResultValue
	ResultFailure
)

// Failure is the wire form of a terminal failure.
type Failure struct {
	Code    errs.Code
	Message string
}

// Result is the oneof {empty | value | failure} shared by every message that
// carries one. On the wire it occupies field numbers 13 (empty), 14 (value)
// and 15 (failure) of the enclosing message.
type Result struct {
	Kind    ResultKind
	Value   []byte
	Failure Failure
}

// EmptyResult returns a set-but-valueless result (e.g. state key absent,
// sleep elapsed).
func EmptyResult() Result {
	return Result{Kind: ResultEmpty}
}

// ValueResult returns a result carrying opaque payload bytes.
func ValueResult(value []byte) Result {
	return Result{Kind: ResultValue, Value: value}
}

// FailureResult returns a result carrying a terminal failure.
func FailureResult(code errs.Code, message string) Result {
	return Result{Kind: ResultFailure, Failure: Failure{Code: code, Message: message}}
}

// Equal reports byte equality of two results, used to tolerate duplicate
// completions.
func (r Result) Equal(other Result) bool {
	return r.Kind == other.Kind &&
		bytes.Equal(r.Value, other.Value) &&
		r.Failure == other.Failure
}

const (
	fieldResultEmpty   = 13
	fieldResultValue   = 14
	fieldResultFailure = 15
)

// appendResult appends the result oneof fields, if set.
func appendResult(b []byte, r Result) []byte {
	switch r.Kind {
	case ResultEmpty:
		b = protowire.AppendTag(b, fieldResultEmpty, protowire.BytesType)
		b = protowire.AppendBytes(b, nil)
	case ResultValue:
		b = protowire.AppendTag(b, fieldResultValue, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Value)
	case ResultFailure:
		b = protowire.AppendTag(b, fieldResultFailure, protowire.BytesType)
		b = protowire.AppendBytes(b, appendFailure(nil, r.Failure))
	}
	return b
}

func appendFailure(b []byte, f Failure) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Code))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, f.Message)
	return b
}

// consumeResultField parses one of the result oneof fields into r. It returns
// false when num is not a result field, leaving r untouched.
func consumeResultField(r *Result, num protowire.Number, typ protowire.Type, payload []byte) (bool, error) {
	switch num {
	case fieldResultEmpty:
		if typ != protowire.BytesType {
			return false, errMalformed("result.empty")
		}
		*r = Result{Kind: ResultEmpty}
	case fieldResultValue:
		if typ != protowire.BytesType {
			return false, errMalformed("result.value")
		}
		*r = Result{Kind: ResultValue, Value: payload}
	case fieldResultFailure:
		if typ != protowire.BytesType {
			return false, errMalformed("result.failure")
		}
		f, err := parseFailure(payload)
		if err != nil {
			return false, err
		}
		*r = Result{Kind: ResultFailure, Failure: f}
	default:
		return false, nil
	}
	return true, nil
}

func parseFailure(b []byte) (Failure, error) {
	var f Failure
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, errMalformed("failure")
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return f, errMalformed("failure.code")
			}
			f.Code = errs.Code(v)
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, errMalformed("failure.message")
			}
			f.Message = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return f, errMalformed("failure")
			}
			b = b[n:]
		}
	}
	return f, nil
}

func errMalformed(what string) error {
	return errs.NewProtocolViolation(errs.CodeInternal, "malformed %s field", what)
}
