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

package journal

import (
	"bytes"

	"durable-sdk/pkg/errs"
	"durable-sdk/pkg/protocol"
)

// matchEntry compares a replayed entry against the message the current user
// operation would journal. Only structurally essential parameters are
// compared; runtime-annotated result fields are ignored, they arrive via
// completions. Sleep wake-up times and awakeable results are derived from
// the original execution and cannot be recomputed, so those kinds match on
// type alone.
func matchEntry(replayed, fresh protocol.Message) error {
	if replayed.Type() != fresh.Type() {
		return mismatch("expected %s at this index, user requested %s", replayed.Type(), fresh.Type())
	}
	switch r := replayed.(type) {
	case *protocol.GetStateEntryMessage:
		f := fresh.(*protocol.GetStateEntryMessage)
		if !bytes.Equal(r.Key, f.Key) {
			return mismatch("get state key %q, journalled %q", f.Key, r.Key)
		}
	case *protocol.SetStateEntryMessage:
		f := fresh.(*protocol.SetStateEntryMessage)
		if !bytes.Equal(r.Key, f.Key) {
			return mismatch("set state key %q, journalled %q", f.Key, r.Key)
		}
		if !bytes.Equal(r.Value, f.Value) {
			return mismatch("set state value for key %q diverged", f.Key)
		}
	case *protocol.ClearStateEntryMessage:
		f := fresh.(*protocol.ClearStateEntryMessage)
		if !bytes.Equal(r.Key, f.Key) {
			return mismatch("clear state key %q, journalled %q", f.Key, r.Key)
		}
	case *protocol.InvokeEntryMessage:
		f := fresh.(*protocol.InvokeEntryMessage)
		if r.ServiceName != f.ServiceName || r.MethodName != f.MethodName {
			return mismatch("invoke target %s/%s, journalled %s/%s", f.ServiceName, f.MethodName, r.ServiceName, r.MethodName)
		}
		if !bytes.Equal(r.Parameter, f.Parameter) {
			return mismatch("invoke request for %s/%s diverged", f.ServiceName, f.MethodName)
		}
	case *protocol.BackgroundInvokeEntryMessage:
		f := fresh.(*protocol.BackgroundInvokeEntryMessage)
		if r.ServiceName != f.ServiceName || r.MethodName != f.MethodName {
			return mismatch("background invoke target %s/%s, journalled %s/%s", f.ServiceName, f.MethodName, r.ServiceName, r.MethodName)
		}
		if !bytes.Equal(r.Parameter, f.Parameter) {
			return mismatch("background invoke request for %s/%s diverged", f.ServiceName, f.MethodName)
		}
	case *protocol.CompleteAwakeableEntryMessage:
		f := fresh.(*protocol.CompleteAwakeableEntryMessage)
		if r.ID != f.ID {
			return mismatch("complete awakeable id %q, journalled %q", f.ID, r.ID)
		}
		if !r.Result.Equal(f.Result) {
			return mismatch("complete awakeable result for %q diverged", f.ID)
		}
	}
	return nil
}

func mismatch(format string, args ...any) error {
	return errs.NewProtocolViolation(errs.CodeJournalMismatch, format, args...)
}
