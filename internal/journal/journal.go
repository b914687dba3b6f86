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

// Package journal keeps the ordered entry log of one invocation.
//
// Entries reach the journal on two paths: replayed entry messages delivered
// by the runtime (up to the known-entries count of the StartMessage), and
// fresh entries appended when handler code requests new operations. The
// journal enforces the replay/processing boundary: while the next user
// operation index is below the known count the operation must match the
// replayed entry at that index, and appends are rejected.
package journal

import (
	"durable-sdk/pkg/errs"
	"durable-sdk/pkg/protocol"
)

// Entry is one journal record: the entry message plus bookkeeping the engine
// needs beyond the wire fields.
type Entry struct {
	Index   uint32
	Message protocol.Message

	// Acked is set once the runtime acknowledged a side-effect entry.
	// Meaningless for other kinds.
	Acked bool
}

// Type returns the entry's message type.
func (e *Entry) Type() protocol.Type {
	return e.Message.Type()
}

// Result returns the entry's result oneof; ok is false for kinds that never
// carry one.
func (e *Entry) Result() (protocol.Result, bool) {
	return protocol.EntryResult(e.Message)
}

// Completed reports whether the entry has a result.
func (e *Entry) Completed() bool {
	r, ok := e.Result()
	return ok && r.Kind != protocol.ResultNone
}

// Journal is the ordered log of entries for the current invocation. It is
// not safe for concurrent use; the engine serialises access.
type Journal struct {
	entries []*Entry
	known   uint32
	user    uint32
	output  bool
}

// New creates a journal expecting known replayed entries.
func New(known uint32) *Journal {
	return &Journal{known: known}
}

// Size returns the number of entries currently in the log.
func (j *Journal) Size() uint32 {
	return uint32(len(j.entries))
}

// Known returns the replayed-entries count announced by the StartMessage.
func (j *Journal) Known() uint32 {
	return j.known
}

// NextUserIndex is the index the next user operation will occupy.
func (j *Journal) NextUserIndex() uint32 {
	return j.user
}

// Replaying reports whether the next user operation falls into the replayed
// prefix of the journal.
func (j *Journal) Replaying() bool {
	return j.user < j.known
}

// AddReplayed ingests one replayed entry message from the runtime. Entries
// beyond the announced known count are a protocol violation.
func (j *Journal) AddReplayed(m protocol.Message) (*Entry, error) {
	if !m.Type().IsEntry() {
		return nil, errs.NewProtocolViolation(errs.CodeInternal, "replayed message %s is not a journal entry", m.Type())
	}
	if j.Size() >= j.known {
		return nil, errs.NewProtocolViolation(errs.CodeInternal, "received replayed entry %d beyond known count %d", j.Size(), j.known)
	}
	e := &Entry{Index: j.Size(), Message: m}
	j.entries = append(j.entries, e)
	return e, nil
}

// Append records a fresh entry for a new user operation and returns it.
// Rejected while replaying and after the Output entry.
func (j *Journal) Append(m protocol.Message) (*Entry, error) {
	if j.Replaying() {
		return nil, errs.NewProtocolViolation(errs.CodeJournalMismatch, "append of %s while replaying entry %d", m.Type(), j.user)
	}
	if j.output {
		return nil, errs.NewProtocolViolation(errs.CodeInternal, "append of %s after the output entry", m.Type())
	}
	e := &Entry{Index: j.Size(), Message: m}
	j.entries = append(j.entries, e)
	j.user++
	if m.Type() == protocol.TypeOutputEntry {
		j.output = true
	}
	return e, nil
}

// MatchReplayed consumes the next user operation against the replayed entry
// at the same index. The caller must ensure the entry has arrived (Size() >
// NextUserIndex()). The fresh message carries the parameters the operation
// would journal in processing mode; only structurally essential fields are
// compared (see match.go).
func (j *Journal) MatchReplayed(fresh protocol.Message) (*Entry, error) {
	if !j.Replaying() {
		return nil, errs.NewProtocolViolation(errs.CodeInternal, "replay match of %s outside replay", fresh.Type())
	}
	if j.user >= j.Size() {
		return nil, errs.NewProtocolViolation(errs.CodeInternal, "replayed entry %d not yet received", j.user)
	}
	e := j.entries[j.user]
	if err := matchEntry(e.Message, fresh); err != nil {
		return nil, err
	}
	j.user++
	return e, nil
}

// Get returns the entry at index for completion delivery.
func (j *Journal) Get(index uint32) (*Entry, bool) {
	if index >= j.Size() {
		return nil, false
	}
	return j.entries[index], true
}

// Complete applies a result to the indexed entry. A byte-equal duplicate is
// tolerated as idempotent; a differing duplicate is rejected. Completions
// for unknown indices or for kinds that carry no result are violations.
func (j *Journal) Complete(index uint32, r protocol.Result) (*Entry, error) {
	e, ok := j.Get(index)
	if !ok {
		return nil, errs.NewProtocolViolation(errs.CodeInternal, "completion for unknown entry index %d", index)
	}
	prev, ok := e.Result()
	if !ok {
		return nil, errs.NewProtocolViolation(errs.CodeInternal, "completion for %s entry %d, which carries no result", e.Type(), index)
	}
	if prev.Kind != protocol.ResultNone {
		if prev.Equal(r) {
			return e, nil
		}
		return nil, errs.NewProtocolViolation(errs.CodeInternal, "conflicting duplicate completion for entry %d", index)
	}
	protocol.SetEntryResult(e.Message, r)
	return e, nil
}
