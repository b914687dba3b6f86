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
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is one typed protocol message. The body is protobuf wire format;
// the fixed message set is small enough that the SDK hand-rolls it on
// protowire instead of shipping generated code.
type Message interface {
	Type() Type
	appendBody(b []byte) []byte
	parseBody(b []byte) error
}

// NewMessage returns an empty message for the given type code, or a protocol
// error for an unknown code.
func NewMessage(t Type) (Message, error) {
	switch t {
	case TypeStart:
		return &StartMessage{}, nil
	case TypeCompletion:
		return &CompletionMessage{}, nil
	case TypeSuspension:
		return &SuspensionMessage{}, nil
	case TypeError:
		return &ErrorMessage{}, nil
	case TypeEntryAck:
		return &EntryAckMessage{}, nil
	case TypeEnd:
		return &EndMessage{}, nil
	case TypeInputEntry:
		return &InputEntryMessage{}, nil
	case TypeOutputEntry:
		return &OutputEntryMessage{}, nil
	case TypeGetStateEntry:
		return &GetStateEntryMessage{}, nil
	case TypeSetStateEntry:
		return &SetStateEntryMessage{}, nil
	case TypeClearStateEntry:
		return &ClearStateEntryMessage{}, nil
	case TypeSleepEntry:
		return &SleepEntryMessage{}, nil
	case TypeInvokeEntry:
		return &InvokeEntryMessage{}, nil
	case TypeBackgroundInvokeEntry:
		return &BackgroundInvokeEntryMessage{}, nil
	case TypeAwakeableEntry:
		return &AwakeableEntryMessage{}, nil
	case TypeCompleteAwakeableEntry:
		return &CompleteAwakeableEntryMessage{}, nil
	case TypeCombinatorEntry:
		return &CombinatorEntryMessage{}, nil
	case TypeSideEffectEntry:
		return &SideEffectEntryMessage{}, nil
	}
	return nil, errUnknownType(t)
}

// fieldValue carries the decoded payload of one field, keyed by wire type.
type fieldValue struct {
	varint uint64
	bytes  []byte
}

// walkFields iterates the top-level fields of a protobuf body.
func walkFields(b []byte, visit func(num protowire.Number, typ protowire.Type, v fieldValue) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errMalformed("tag")
		}
		b = b[n:]
		var v fieldValue
		switch typ {
		case protowire.VarintType:
			v.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var u uint32
			u, n = protowire.ConsumeFixed32(b)
			v.varint = uint64(u)
		case protowire.Fixed64Type:
			v.varint, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			v.bytes, n = protowire.ConsumeBytes(b)
		default:
			return errMalformed("field")
		}
		if n < 0 {
			return errMalformed("field")
		}
		b = b[n:]
		if err := visit(num, typ, v); err != nil {
			return err
		}
	}
	return nil
}

// appendPackedUint32 encodes a packed repeated uint32 field.
func appendPackedUint32(b []byte, num protowire.Number, values []uint32) []byte {
	if len(values) == 0 {
		return b
	}
	var packed []byte
	for _, v := range values {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// consumePackedUint32 accepts both packed and unpacked encodings.
func consumePackedUint32(dst *[]uint32, typ protowire.Type, v fieldValue) error {
	if typ == protowire.VarintType {
		*dst = append(*dst, uint32(v.varint))
		return nil
	}
	b := v.bytes
	for len(b) > 0 {
		u, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return errMalformed("packed uint32")
		}
		*dst = append(*dst, uint32(u))
		b = b[n:]
	}
	return nil
}

// StateEntry is one key/value pair of the eager state map.
type StateEntry struct {
	Key   []byte
	Value []byte
}

// StartMessage opens the invocation stream: invocation identity, the number
// of journal entries that will be replayed, and the eager state snapshot.
type StartMessage struct {
	InvocationID []byte
	KnownEntries uint32
	StateMap     []StateEntry
}

func (*StartMessage) Type() Type { return TypeStart }

func (m *StartMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.InvocationID)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.KnownEntries))
	for _, e := range m.StateMap {
		var kv []byte
		kv = protowire.AppendTag(kv, 1, protowire.BytesType)
		kv = protowire.AppendBytes(kv, e.Key)
		kv = protowire.AppendTag(kv, 2, protowire.BytesType)
		kv = protowire.AppendBytes(kv, e.Value)
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, kv)
	}
	return b
}

func (m *StartMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.InvocationID = v.bytes
		case 2:
			m.KnownEntries = uint32(v.varint)
		case 3:
			var e StateEntry
			if err := walkFields(v.bytes, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
				switch num {
				case 1:
					e.Key = v.bytes
				case 2:
					e.Value = v.bytes
				}
				return nil
			}); err != nil {
				return err
			}
			m.StateMap = append(m.StateMap, e)
		}
		return nil
	})
}

// CompletionMessage fills in the result of a previously journalled entry.
type CompletionMessage struct {
	EntryIndex uint32
	Result     Result
}

func (*CompletionMessage) Type() Type { return TypeCompletion }

func (m *CompletionMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.EntryIndex))
	return appendResult(b, m.Result)
}

func (m *CompletionMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		if num == 1 {
			m.EntryIndex = uint32(v.varint)
			return nil
		}
		_, err := consumeResultField(&m.Result, num, typ, v.bytes)
		return err
	})
}

// SuspensionMessage closes the stream while waiting on unresolved entries.
type SuspensionMessage struct {
	EntryIndexes []uint32
}

func (*SuspensionMessage) Type() Type { return TypeSuspension }

func (m *SuspensionMessage) appendBody(b []byte) []byte {
	return appendPackedUint32(b, 1, m.EntryIndexes)
}

func (m *SuspensionMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		if num == 1 {
			return consumePackedUint32(&m.EntryIndexes, typ, v)
		}
		return nil
	})
}

// ErrorMessage reports a retryable or engine failure to the runtime.
type ErrorMessage struct {
	Code        uint32
	Message     string
	Description string
}

func (*ErrorMessage) Type() Type { return TypeError }

func (m *ErrorMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Code))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, m.Message)
	if m.Description != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, m.Description)
	}
	return b
}

func (m *ErrorMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.Code = uint32(v.varint)
		case 2:
			m.Message = string(v.bytes)
		case 3:
			m.Description = string(v.bytes)
		}
		return nil
	})
}

// EntryAckMessage acknowledges that a side-effect entry is durable.
type EntryAckMessage struct {
	EntryIndex uint32
}

func (*EntryAckMessage) Type() Type { return TypeEntryAck }

func (m *EntryAckMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(m.EntryIndex))
}

func (m *EntryAckMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		if num == 1 {
			m.EntryIndex = uint32(v.varint)
		}
		return nil
	})
}

// EndMessage gracefully closes the inbound stream.
type EndMessage struct{}

func (*EndMessage) Type() Type { return TypeEnd }

func (m *EndMessage) appendBody(b []byte) []byte { return b }

func (m *EndMessage) parseBody(b []byte) error { return nil }

// InputEntryMessage is journal entry 0: the invocation input payload.
type InputEntryMessage struct {
	Value []byte
}

func (*InputEntryMessage) Type() Type { return TypeInputEntry }

func (m *InputEntryMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, fieldResultValue, protowire.BytesType)
	return protowire.AppendBytes(b, m.Value)
}

func (m *InputEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		if num == fieldResultValue {
			m.Value = v.bytes
		}
		return nil
	})
}

// OutputEntryMessage is the terminal entry: the invocation's value or
// terminal failure.
type OutputEntryMessage struct {
	Result Result
}

func (*OutputEntryMessage) Type() Type { return TypeOutputEntry }

func (m *OutputEntryMessage) appendBody(b []byte) []byte {
	return appendResult(b, m.Result)
}

func (m *OutputEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		_, err := consumeResultField(&m.Result, num, typ, v.bytes)
		return err
	})
}

// GetStateEntryMessage reads one state key. The result may be filled in
// inline (eager hit, DONE flag) or later by a completion.
type GetStateEntryMessage struct {
	Key    []byte
	Result Result
}

func (*GetStateEntryMessage) Type() Type { return TypeGetStateEntry }

func (m *GetStateEntryMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Key)
	return appendResult(b, m.Result)
}

func (m *GetStateEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		if num == 1 {
			m.Key = v.bytes
			return nil
		}
		_, err := consumeResultField(&m.Result, num, typ, v.bytes)
		return err
	})
}

// SetStateEntryMessage writes one state key.
type SetStateEntryMessage struct {
	Key   []byte
	Value []byte
}

func (*SetStateEntryMessage) Type() Type { return TypeSetStateEntry }

func (m *SetStateEntryMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Key)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	return protowire.AppendBytes(b, m.Value)
}

func (m *SetStateEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.Key = v.bytes
		case 3:
			m.Value = v.bytes
		}
		return nil
	})
}

// ClearStateEntryMessage deletes one state key.
type ClearStateEntryMessage struct {
	Key []byte
}

func (*ClearStateEntryMessage) Type() Type { return TypeClearStateEntry }

func (m *ClearStateEntryMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	return protowire.AppendBytes(b, m.Key)
}

func (m *ClearStateEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		if num == 1 {
			m.Key = v.bytes
		}
		return nil
	})
}

// SleepEntryMessage parks the invocation until an absolute wake-up time,
// milliseconds since the Unix epoch.
type SleepEntryMessage struct {
	WakeUpTime uint64
	Result     Result
}

func (*SleepEntryMessage) Type() Type { return TypeSleepEntry }

func (m *SleepEntryMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, m.WakeUpTime)
	return appendResult(b, m.Result)
}

func (m *SleepEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		if num == 1 {
			m.WakeUpTime = v.varint
			return nil
		}
		_, err := consumeResultField(&m.Result, num, typ, v.bytes)
		return err
	})
}

// InvokeEntryMessage calls another service method and awaits its response.
type InvokeEntryMessage struct {
	ServiceName string
	MethodName  string
	Parameter   []byte
	Result      Result
}

func (*InvokeEntryMessage) Type() Type { return TypeInvokeEntry }

func (m *InvokeEntryMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.ServiceName)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, m.MethodName)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Parameter)
	return appendResult(b, m.Result)
}

func (m *InvokeEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.ServiceName = string(v.bytes)
			return nil
		case 2:
			m.MethodName = string(v.bytes)
			return nil
		case 3:
			m.Parameter = v.bytes
			return nil
		}
		_, err := consumeResultField(&m.Result, num, typ, v.bytes)
		return err
	})
}

// BackgroundInvokeEntryMessage fires a call without awaiting it, optionally
// delayed until an absolute invoke time.
type BackgroundInvokeEntryMessage struct {
	ServiceName string
	MethodName  string
	Parameter   []byte
	InvokeTime  uint64
}

func (*BackgroundInvokeEntryMessage) Type() Type { return TypeBackgroundInvokeEntry }

func (m *BackgroundInvokeEntryMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.ServiceName)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, m.MethodName)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Parameter)
	if m.InvokeTime != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, m.InvokeTime)
	}
	return b
}

func (m *BackgroundInvokeEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			m.ServiceName = string(v.bytes)
		case 2:
			m.MethodName = string(v.bytes)
		case 3:
			m.Parameter = v.bytes
		case 4:
			m.InvokeTime = v.varint
		}
		return nil
	})
}

// AwakeableEntryMessage creates an externally addressable waitable; the
// result arrives via a completion once a peer resolves it.
type AwakeableEntryMessage struct {
	Result Result
}

func (*AwakeableEntryMessage) Type() Type { return TypeAwakeableEntry }

func (m *AwakeableEntryMessage) appendBody(b []byte) []byte {
	return appendResult(b, m.Result)
}

func (m *AwakeableEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		_, err := consumeResultField(&m.Result, num, typ, v.bytes)
		return err
	})
}

// CompleteAwakeableEntryMessage resolves or rejects a peer's awakeable.
type CompleteAwakeableEntryMessage struct {
	ID     string
	Result Result
}

func (*CompleteAwakeableEntryMessage) Type() Type { return TypeCompleteAwakeableEntry }

func (m *CompleteAwakeableEntryMessage) appendBody(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.ID)
	return appendResult(b, m.Result)
}

func (m *CompleteAwakeableEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		if num == 1 {
			m.ID = string(v.bytes)
			return nil
		}
		_, err := consumeResultField(&m.Result, num, typ, v.bytes)
		return err
	})
}

// CombinatorEntryMessage records the order in which a combinator observed
// its children resolve, so replay elects the same winner.
type CombinatorEntryMessage struct {
	EntryIndexes []uint32
}

func (*CombinatorEntryMessage) Type() Type { return TypeCombinatorEntry }

func (m *CombinatorEntryMessage) appendBody(b []byte) []byte {
	return appendPackedUint32(b, 1, m.EntryIndexes)
}

func (m *CombinatorEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		if num == 1 {
			return consumePackedUint32(&m.EntryIndexes, typ, v)
		}
		return nil
	})
}

// SideEffectEntryMessage freezes the value (or terminal failure) of a
// non-deterministic action. Sent with REQUIRES_ACK; durable only once the
// runtime acknowledges it.
type SideEffectEntryMessage struct {
	Result Result
}

func (*SideEffectEntryMessage) Type() Type { return TypeSideEffectEntry }

func (m *SideEffectEntryMessage) appendBody(b []byte) []byte {
	return appendResult(b, m.Result)
}

func (m *SideEffectEntryMessage) parseBody(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v fieldValue) error {
		_, err := consumeResultField(&m.Result, num, typ, v.bytes)
		return err
	})
}

// EntryResult returns the result oneof of an entry message and whether the
// entry kind carries one.
func EntryResult(m Message) (Result, bool) {
	switch msg := m.(type) {
	case *GetStateEntryMessage:
		return msg.Result, true
	case *SleepEntryMessage:
		return msg.Result, true
	case *InvokeEntryMessage:
		return msg.Result, true
	case *AwakeableEntryMessage:
		return msg.Result, true
	case *SideEffectEntryMessage:
		return msg.Result, true
	case *OutputEntryMessage:
		return msg.Result, true
	}
	return Result{}, false
}

// SetEntryResult stores a result on an entry message; it reports false for
// entry kinds that never carry one.
func SetEntryResult(m Message, r Result) bool {
	switch msg := m.(type) {
	case *GetStateEntryMessage:
		msg.Result = r
	case *SleepEntryMessage:
		msg.Result = r
	case *InvokeEntryMessage:
		msg.Result = r
	case *AwakeableEntryMessage:
		msg.Result = r
	case *SideEffectEntryMessage:
		msg.Result = r
	case *OutputEntryMessage:
		msg.Result = r
	default:
		return false
	}
	return true
}
