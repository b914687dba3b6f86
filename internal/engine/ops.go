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

package engine

import (
	"encoding/base64"
	"encoding/binary"
	"time"

	"durable-sdk/internal/futures"
	"durable-sdk/internal/journal"
	"durable-sdk/pkg/errs"
	"durable-sdk/pkg/protocol"
)

// GetState reads one state key. An eager-cache hit answers without a runtime
// round trip, synthesizing a completed entry; a miss journals a GetState
// entry and awaits its completion. Returns the value and whether the key was
// present.
func (e *Engine) GetState(key string) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A key written by this invocation is served from the cache without a
	// journal entry: the Set/Clear entry already pins the value for replay.
	if e.localTouched[key] {
		if e.closed {
			return nil, false, errs.ErrClosed
		}
		if e.insideSideEffect {
			err := errs.NewProtocolViolation(errs.CodeInternal, "state access inside a side effect")
			e.fail(err)
			return nil, false, err
		}
		v := e.stateCache[key]
		return v.value, v.present, nil
	}

	fresh := &protocol.GetStateEntryMessage{Key: []byte(key)}
	if !e.journal.Replaying() {
		if v, known := e.stateCache[key]; known {
			if v.present {
				fresh.Result = protocol.ValueResult(v.value)
			} else {
				fresh.Result = protocol.EmptyResult()
			}
		}
	}
	entry, err := e.applyEntry(fresh)
	if err != nil {
		return nil, false, err
	}
	r, err := e.awaitEntry(entry)
	if err != nil {
		return nil, false, err
	}
	switch r.Kind {
	case protocol.ResultValue:
		e.stateCache[key] = stateVal{present: true, value: r.Value}
		return r.Value, true, nil
	case protocol.ResultEmpty:
		e.stateCache[key] = stateVal{}
		return nil, false, nil
	case protocol.ResultFailure:
		return nil, false, errs.NewTerminalError(r.Failure.Code, "%s", r.Failure.Message)
	}
	return nil, false, errs.NewProtocolViolation(errs.CodeInternal, "get state completed without a result")
}

// SetState writes one state key and updates the local cache.
func (e *Engine) SetState(key string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.applyEntry(&protocol.SetStateEntryMessage{Key: []byte(key), Value: value})
	if err != nil {
		return err
	}
	e.stateCache[key] = stateVal{present: true, value: value}
	e.localTouched[key] = true
	return nil
}

// ClearState deletes one state key and updates the local cache.
func (e *Engine) ClearState(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.applyEntry(&protocol.ClearStateEntryMessage{Key: []byte(key)})
	if err != nil {
		return err
	}
	e.stateCache[key] = stateVal{}
	e.localTouched[key] = true
	return nil
}

// Sleep journals a sleep entry with wake-up = now + d and returns its
// deferred result. The runtime completes the entry once the wake-up time
// passed.
func (e *Engine) Sleep(d time.Duration) (futures.Deferred, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	wakeUp := uint64(e.clock().Add(d).UnixMilli())
	entry, err := e.applyEntry(&protocol.SleepEntryMessage{WakeUpTime: wakeUp})
	if err != nil {
		return nil, err
	}
	return e.deferredFor(entry), nil
}

// Call invokes service/method with the given request bytes and returns the
// deferred response.
func (e *Engine) Call(service, method string, request []byte) (futures.Deferred, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.applyEntry(&protocol.InvokeEntryMessage{
		ServiceName: service,
		MethodName:  method,
		Parameter:   request,
	})
	if err != nil {
		return nil, err
	}
	return e.deferredFor(entry), nil
}

// OneWayCall fires service/method without awaiting a response.
func (e *Engine) OneWayCall(service, method string, request []byte) error {
	return e.backgroundInvoke(service, method, request, 0)
}

// DelayedCall schedules a one-way call to run after delay.
func (e *Engine) DelayedCall(service, method string, request []byte, delay time.Duration) error {
	return e.backgroundInvoke(service, method, request, uint64(e.clock().Add(delay).UnixMilli()))
}

func (e *Engine) backgroundInvoke(service, method string, request []byte, invokeTime uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.applyEntry(&protocol.BackgroundInvokeEntryMessage{
		ServiceName: service,
		MethodName:  method,
		Parameter:   request,
		InvokeTime:  invokeTime,
	})
	return err
}

// SideEffect records the value of a non-deterministic action. On first
// execution the action runs once, its value (or terminal failure) is
// journalled with REQUIRES_ACK and control returns only after the runtime
// acknowledged durability. On replay the recorded result is returned without
// re-executing fn. The action must not issue journalled operations.
func (e *Engine) SideEffect(fn func() ([]byte, error)) ([]byte, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errs.ErrClosed
	}
	if e.insideSideEffect {
		err := errs.NewProtocolViolation(errs.CodeInternal, "side effect nested inside a side effect")
		e.fail(err)
		e.mu.Unlock()
		return nil, err
	}

	if e.journal.Replaying() {
		entry, err := e.matchNext(&protocol.SideEffectEntryMessage{})
		if err != nil {
			if _, ok := errs.AsProtocolViolation(err); ok {
				e.fail(err)
			}
			e.mu.Unlock()
			return nil, err
		}
		if !e.journal.Replaying() {
			e.state = StateProcessing
		}
		r, _ := entry.Result()
		e.mu.Unlock()
		return sideEffectReturn(r)
	}

	e.insideSideEffect = true
	e.mu.Unlock()

	value, fnErr := fn()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.insideSideEffect = false
	if e.closed {
		// The guard tripped inside fn, or the runtime closed the stream.
		return nil, errs.ErrClosed
	}

	var result protocol.Result
	switch te, terminal := errs.AsTerminal(fnErr); {
	case fnErr == nil:
		result = protocol.ValueResult(value)
	case terminal:
		result = protocol.FailureResult(te.Code, te.Message)
	default:
		// Retryable: nothing is recorded, the invocation is re-attempted.
		return nil, fnErr
	}

	msg := &protocol.SideEffectEntryMessage{Result: result}
	entry, err := e.journal.Append(msg)
	if err != nil {
		e.fail(err)
		return nil, err
	}
	e.send(msg)

	// Durable only once acknowledged.
	for !entry.Acked {
		if e.closed {
			return nil, errs.ErrClosed
		}
		if e.inputClosed {
			e.suspend([]uint32{entry.Index})
			return nil, errs.ErrClosed
		}
		e.cond.Wait()
	}
	return sideEffectReturn(result)
}

func sideEffectReturn(r protocol.Result) ([]byte, error) {
	switch r.Kind {
	case protocol.ResultValue:
		return r.Value, nil
	case protocol.ResultFailure:
		return nil, errs.NewTerminalError(r.Failure.Code, "%s", r.Failure.Message)
	case protocol.ResultEmpty:
		return nil, nil
	}
	return nil, errs.NewProtocolViolation(errs.CodeInternal, "side effect entry without recorded result")
}

// Awakeable journals an awakeable entry and returns its externally
// addressable id plus the deferred result an external party resolves.
func (e *Engine) Awakeable() (string, futures.Deferred, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.applyEntry(&protocol.AwakeableEntryMessage{})
	if err != nil {
		return "", nil, err
	}
	return AwakeableID(e.invocationID, entry.Index), e.deferredFor(entry), nil
}

// CompleteAwakeable resolves or rejects a peer's awakeable by id.
func (e *Engine) CompleteAwakeable(id string, r protocol.Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.applyEntry(&protocol.CompleteAwakeableEntryMessage{ID: id, Result: r})
	return err
}

// All builds an all combinator over the given deferreds.
func (e *Engine) All(children ...futures.Deferred) futures.Deferred {
	return futures.All(children...)
}

// Any builds an any combinator over the given deferreds.
func (e *Engine) Any(children ...futures.Deferred) futures.Deferred {
	return futures.Any(children...)
}

// AwakeableID encodes (invocation id, entry index) into the external
// awakeable address.
func AwakeableID(invocationID []byte, index uint32) string {
	raw := make([]byte, 0, len(invocationID)+4)
	raw = append(raw, invocationID...)
	raw = binary.BigEndian.AppendUint32(raw, index)
	return "prom_" + base64.RawURLEncoding.EncodeToString(raw)
}

// ParseAwakeableID is the inverse of AwakeableID.
func ParseAwakeableID(id string) (invocationID []byte, index uint32, err error) {
	const prefix = "prom_"
	if len(id) < len(prefix) || id[:len(prefix)] != prefix {
		return nil, 0, errs.NewTerminalError(errs.CodeInvalidArgument, "malformed awakeable id %q", id)
	}
	raw, decErr := base64.RawURLEncoding.DecodeString(id[len(prefix):])
	if decErr != nil || len(raw) < 4 {
		return nil, 0, errs.NewTerminalError(errs.CodeInvalidArgument, "malformed awakeable id %q", id)
	}
	return raw[:len(raw)-4], binary.BigEndian.Uint32(raw[len(raw)-4:]), nil
}

// deferredFor returns the single deferred handle for an entry, already
// resolved when the entry carries its result. Mu held.
func (e *Engine) deferredFor(entry *journal.Entry) *futures.Single {
	if r, ok := entry.Result(); ok && r.Kind != protocol.ResultNone {
		return futures.NewResolvedSingle(entry.Index, r)
	}
	return futures.NewSingle(entry.Index)
}
