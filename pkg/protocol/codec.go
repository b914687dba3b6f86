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
	"encoding/binary"

	"durable-sdk/pkg/errs"
)

// Encode frames one message: 8-byte big-endian header followed by the
// protobuf body.
func Encode(m Message) []byte {
	body := m.appendBody(nil)
	h := HeaderFor(m, len(body))
	out := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint64(out, h.Encode())
	return append(out, body...)
}

// EncodeWithFlags frames a message with explicit header flags, used when the
// caller controls the DONE flag (e.g. replay fixtures in tests).
func EncodeWithFlags(m Message, flags uint16) []byte {
	body := m.appendBody(nil)
	h := Header{Type: m.Type(), Flags: flags, Length: uint32(len(body))}
	out := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint64(out, h.Encode())
	return append(out, body...)
}

// Decoder incrementally unframes messages from a byte stream. Feed bytes in
// as they arrive and pop complete messages with Next. The decoder is purely
// syntactic; it does not interpret message semantics.
type Decoder struct {
	buf []byte
}

// Feed appends stream bytes to the decoder's buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete message and its header, or a nil message
// and nil error when the buffer does not hold one yet. An unknown type code or a malformed body
// is a fatal protocol error.
func (d *Decoder) Next() (Message, Header, error) {
	if len(d.buf) < 8 {
		return nil, Header{}, nil
	}
	h := ParseHeader(binary.BigEndian.Uint64(d.buf))
	if len(d.buf) < 8+int(h.Length) {
		return nil, Header{}, nil
	}
	body := d.buf[8 : 8+h.Length]
	d.buf = d.buf[8+h.Length:]

	m, err := NewMessage(h.Type)
	if err != nil {
		return nil, h, err
	}
	if err := m.parseBody(body); err != nil {
		return nil, h, err
	}
	return m, h, nil
}

// Rest reports how many buffered bytes have not yet formed a complete
// message. A non-zero rest at end of stream means the stream was truncated.
func (d *Decoder) Rest() int {
	return len(d.buf)
}

// ErrTruncated is the fatal error for a stream that ended mid-frame.
var ErrTruncated = errs.NewProtocolViolation(errs.CodeInternal, "truncated message stream")
