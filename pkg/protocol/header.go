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

// Package protocol implements the message layer spoken between the SDK and
// the runtime: typed messages, their protobuf wire bodies and the 64-bit
// frame header carried before each body.
package protocol

import (
	"fmt"

	"durable-sdk/pkg/errs"
)

// Type identifies a protocol message kind. The code space is partitioned:
// 0x0000-0x03FF control messages, 0x0400-0xFBFF journal entries,
// 0xFC00-0xFFFF SDK-private journal entries.
type Type uint16

const (
	TypeStart      Type = 0x0000
	TypeCompletion Type = 0x0001
	TypeSuspension Type = 0x0002
	TypeError      Type = 0x0003
	TypeEntryAck   Type = 0x0004
	TypeEnd        Type = 0x0005

	TypeInputEntry             Type = 0x0400
	TypeOutputEntry            Type = 0x0401
	TypeGetStateEntry          Type = 0x0800
	TypeSetStateEntry          Type = 0x0801
	TypeClearStateEntry        Type = 0x0802
	TypeSleepEntry             Type = 0x0C00
	TypeInvokeEntry            Type = 0x0C01
	TypeBackgroundInvokeEntry  Type = 0x0C02
	TypeAwakeableEntry         Type = 0x0C03
	TypeCompleteAwakeableEntry Type = 0x0C04

	TypeCombinatorEntry Type = 0xFC00
	TypeSideEffectEntry Type = 0xFC01
)

// IsEntry reports whether the type is a journal entry message.
func (t Type) IsEntry() bool {
	return t >= TypeInputEntry
}

func (t Type) String() string {
	switch t {
	case TypeStart:
		return "Start"
	case TypeCompletion:
		return "Completion"
	case TypeSuspension:
		return "Suspension"
	case TypeError:
		return "Error"
	case TypeEntryAck:
		return "EntryAck"
	case TypeEnd:
		return "End"
	case TypeInputEntry:
		return "InputEntry"
	case TypeOutputEntry:
		return "OutputEntry"
	case TypeGetStateEntry:
		return "GetStateEntry"
	case TypeSetStateEntry:
		return "SetStateEntry"
	case TypeClearStateEntry:
		return "ClearStateEntry"
	case TypeSleepEntry:
		return "SleepEntry"
	case TypeInvokeEntry:
		return "InvokeEntry"
	case TypeBackgroundInvokeEntry:
		return "BackgroundInvokeEntry"
	case TypeAwakeableEntry:
		return "AwakeableEntry"
	case TypeCompleteAwakeableEntry:
		return "CompleteAwakeableEntry"
	case TypeCombinatorEntry:
		return "CombinatorEntry"
	case TypeSideEffectEntry:
		return "SideEffectEntry"
	}
	return fmt.Sprintf("Type(0x%04X)", uint16(t))
}

// Header flags. Both occupy bit 0; their meaning depends on the message type.
const (
	// FlagDone marks an entry message that already carries its result.
	FlagDone uint16 = 0x0001
	// FlagRequiresAck marks a side-effect entry that must be acknowledged by
	// the runtime before it is durable.
	FlagRequiresAck uint16 = 0x0001
)

// Header is the 64-bit word preceding each message body: bits 63..48 type,
// 47..32 flags, 31..0 body length.
type Header struct {
	Type   Type
	Flags  uint16
	Length uint32
}

// Encode packs the header into its wire representation.
func (h Header) Encode() uint64 {
	return uint64(h.Type)<<48 | uint64(h.Flags)<<32 | uint64(h.Length)
}

// Done reports whether the DONE flag is set.
func (h Header) Done() bool {
	return h.Flags&FlagDone != 0
}

// ParseHeader unpacks a 64-bit header word. The type code is not validated
// here; NewMessage rejects unknown codes.
func ParseHeader(encoded uint64) Header {
	return Header{
		Type:   Type(encoded >> 48),
		Flags:  uint16(encoded >> 32),
		Length: uint32(encoded),
	}
}

// HeaderFor computes the outbound header for a message: the body length, the
// DONE flag for GetState, Sleep, Invoke and Awakeable entries carrying a
// result, and REQUIRES_ACK for side effects. Other kinds carry no flags.
func HeaderFor(m Message, bodyLen int) Header {
	h := Header{Type: m.Type(), Length: uint32(bodyLen)}
	switch msg := m.(type) {
	case *SideEffectEntryMessage:
		h.Flags = FlagRequiresAck
	case *GetStateEntryMessage:
		if msg.Result.Kind != ResultNone {
			h.Flags = FlagDone
		}
	case *SleepEntryMessage:
		if msg.Result.Kind != ResultNone {
			h.Flags = FlagDone
		}
	case *InvokeEntryMessage:
		if msg.Result.Kind != ResultNone {
			h.Flags = FlagDone
		}
	case *AwakeableEntryMessage:
		if msg.Result.Kind != ResultNone {
			h.Flags = FlagDone
		}
	}
	return h
}

// errUnknownType builds the fatal error for an unrecognized type code.
func errUnknownType(t Type) error {
	return errs.NewProtocolViolation(errs.CodeInternal, "unknown message type code 0x%04X", uint16(t))
}
