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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"durable-sdk/pkg/errs"
	"durable-sdk/pkg/protocol"
)

var testClock = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

func newTestEngine(t *testing.T, handler Handler) *Engine {
	t.Helper()
	return New(Options{
		Service: "Greeter",
		Method:  "Greet",
		Handler: handler,
		Clock:   testClock,
	})
}

func startFrame(known uint32, eager map[string]string) []byte {
	m := &protocol.StartMessage{InvocationID: []byte("inv-test"), KnownEntries: known}
	for k, v := range eager {
		m.StateMap = append(m.StateMap, protocol.StateEntry{Key: []byte(k), Value: []byte(v)})
	}
	return protocol.Encode(m)
}

func inputFrame(v string) []byte {
	return protocol.Encode(&protocol.InputEntryMessage{Value: []byte(v)})
}

func push(t *testing.T, e *Engine, frames ...[]byte) {
	t.Helper()
	for _, f := range frames {
		require.NoError(t, e.PushInput(f))
	}
}

// nextMessage pops and decodes one outbound frame, including its header.
func nextMessage(t *testing.T, e *Engine) (protocol.Message, protocol.Header) {
	t.Helper()
	b, ok := e.PollOutput()
	require.True(t, ok, "engine closed before the expected message")
	var d protocol.Decoder
	d.Feed(b)
	m, h, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, m)
	return m, h
}

// drain collects every remaining outbound message until the engine closes.
func drain(t *testing.T, e *Engine) []protocol.Message {
	t.Helper()
	var msgs []protocol.Message
	for {
		b, ok := e.PollOutput()
		if !ok {
			return msgs
		}
		var d protocol.Decoder
		d.Feed(b)
		m, _, err := d.Next()
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
}

// Scenario: reset counter. clear("total") then return empty.
func TestScenario_ResetCounter(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		if err := ops.ClearState("total"); err != nil {
			return nil, err
		}
		return nil, nil
	})
	push(t, e, startFrame(1, nil), inputFrame(`{"name":"c"}`))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 2)
	clearEntry, ok := msgs[0].(*protocol.ClearStateEntryMessage)
	require.True(t, ok, "first outbound is %s", msgs[0].Type())
	assert.Equal(t, []byte("total"), clearEntry.Key)
	out, ok := msgs[1].(*protocol.OutputEntryMessage)
	require.True(t, ok, "second outbound is %s", msgs[1].Type())
	assert.Equal(t, protocol.ResultValue, out.Result.Kind)
	assert.Empty(t, out.Result.Value)
}

// Scenario: get with eager hit. The entry is synthesized from the cache and
// emitted with DONE; no completion round trip happens.
func TestScenario_GetWithEagerHit(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		v, _, err := ops.GetState("STATE")
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	push(t, e, startFrame(1, map[string]string{"STATE": "hello"}), inputFrame(""))
	e.CloseInput()

	get, h := nextMessage(t, e)
	entry, ok := get.(*protocol.GetStateEntryMessage)
	require.True(t, ok)
	assert.Equal(t, []byte("STATE"), entry.Key)
	assert.Equal(t, protocol.ValueResult([]byte("hello")), entry.Result)
	assert.True(t, h.Done())

	out, _ := nextMessage(t, e)
	assert.Equal(t, protocol.ValueResult([]byte("hello")), out.(*protocol.OutputEntryMessage).Result)
	assert.Empty(t, drain(t, e))
}

// Scenario: sleep then return, first attempt. The sleep entry is journalled,
// then the drained stream turns the await into a suspension on index 1.
func TestScenario_SleepSuspends(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		d, err := ops.Sleep(100 * time.Millisecond)
		if err != nil {
			return nil, err
		}
		if _, err := ops.Await(d); err != nil {
			return nil, err
		}
		return []byte("done"), nil
	})
	push(t, e, startFrame(1, nil), inputFrame(""))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 2)
	sleep := msgs[0].(*protocol.SleepEntryMessage)
	assert.Equal(t, uint64(testClock().Add(100*time.Millisecond).UnixMilli()), sleep.WakeUpTime)
	susp := msgs[1].(*protocol.SuspensionMessage)
	assert.Equal(t, []uint32{1}, susp.EntryIndexes)
}

// Scenario: sleep then return, re-invocation. The journalled sleep entry
// carries its result; no outbound entries are replayed, only the output.
func TestScenario_SleepReplayCompletes(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		d, err := ops.Sleep(100 * time.Millisecond)
		if err != nil {
			return nil, err
		}
		if _, err := ops.Await(d); err != nil {
			return nil, err
		}
		return []byte("done"), nil
	})
	push(t, e,
		startFrame(2, nil),
		inputFrame(""),
		protocol.Encode(&protocol.SleepEntryMessage{WakeUpTime: 111, Result: protocol.EmptyResult()}),
	)
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.ValueResult([]byte("done")), msgs[0].(*protocol.OutputEntryMessage).Result)
}

// Scenario: side-effect guard. A journalled operation inside the action is a
// fatal INTERNAL violation and no side-effect entry is recorded.
func TestScenario_SideEffectGuard(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		return ops.SideEffect(func() ([]byte, error) {
			if err := ops.OneWayCall("Peer", "Poke", nil); err != nil {
				return nil, err
			}
			return []byte("x"), nil
		})
	})
	push(t, e, startFrame(1, nil), inputFrame(""))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	em, ok := msgs[0].(*protocol.ErrorMessage)
	require.True(t, ok, "outbound is %s", msgs[0].Type())
	assert.Equal(t, uint32(errs.CodeInternal), em.Code)
	assert.Contains(t, em.Message, "side effect")
}

// Scenario: journal mismatch. The replayed entry at index 1 is a get of a
// different key than the one handler code requests.
func TestScenario_JournalMismatch(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		v, _, err := ops.GetState("STATE")
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	push(t, e,
		startFrame(2, nil),
		inputFrame(""),
		protocol.Encode(&protocol.GetStateEntryMessage{Key: []byte("other")}),
	)
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	em := msgs[0].(*protocol.ErrorMessage)
	assert.Equal(t, uint32(errs.CodeJournalMismatch), em.Code)
}

// Scenario: terminal vs retryable failure.
func TestScenario_TerminalFailureBecomesOutput(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		return nil, errs.NewTerminalError(errs.CodeInternal, "x")
	})
	push(t, e, startFrame(1, nil), inputFrame(""))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	out := msgs[0].(*protocol.OutputEntryMessage)
	assert.Equal(t, protocol.FailureResult(errs.CodeInternal, "x"), out.Result)
}

func TestScenario_RetryableFailureBecomesError(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		return nil, errors.New("illegal state: x")
	})
	push(t, e, startFrame(1, nil), inputFrame(""))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	em := msgs[0].(*protocol.ErrorMessage)
	assert.True(t, strings.Contains(em.Message, "illegal state"))
}

func TestScenario_HandlerPanicBecomesError(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		panic("kaboom")
	})
	push(t, e, startFrame(1, nil), inputFrame(""))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	em := msgs[0].(*protocol.ErrorMessage)
	assert.Contains(t, em.Message, "kaboom")
}

// Side effect, first execution: entry sent with REQUIRES_ACK, control
// returns only after the runtime acknowledged it.
func TestSideEffect_FirstExecutionAwaitsAck(t *testing.T) {
	ran := 0
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		return ops.SideEffect(func() ([]byte, error) {
			ran++
			return []byte("42"), nil
		})
	})
	push(t, e, startFrame(1, nil), inputFrame(""))

	se, h := nextMessage(t, e)
	assert.Equal(t, protocol.ValueResult([]byte("42")), se.(*protocol.SideEffectEntryMessage).Result)
	assert.NotZero(t, h.Flags&protocol.FlagRequiresAck)

	push(t, e, protocol.Encode(&protocol.EntryAckMessage{EntryIndex: 1}))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.ValueResult([]byte("42")), msgs[0].(*protocol.OutputEntryMessage).Result)
	assert.Equal(t, 1, ran)
}

// Side effect on replay: the recorded value is returned, the action never
// runs, and nothing is emitted for it.
func TestSideEffect_ReplayDoesNotReExecute(t *testing.T) {
	ran := 0
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		return ops.SideEffect(func() ([]byte, error) {
			ran++
			return []byte("fresh"), nil
		})
	})
	push(t, e,
		startFrame(2, nil),
		inputFrame(""),
		protocol.Encode(&protocol.SideEffectEntryMessage{Result: protocol.ValueResult([]byte("recorded"))}),
	)
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.ValueResult([]byte("recorded")), msgs[0].(*protocol.OutputEntryMessage).Result)
	assert.Zero(t, ran)
}

// Awakeables: the id encodes (invocation id, entry index) and the deferred
// resolves from an inbound completion.
func TestAwakeable_ResolvedByCompletion(t *testing.T) {
	var gotID string
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		id, d, err := ops.Awakeable()
		if err != nil {
			return nil, err
		}
		gotID = id
		r, err := ops.Await(d)
		if err != nil {
			return nil, err
		}
		return r.Value, nil
	})
	push(t, e, startFrame(1, nil), inputFrame(""))

	m, _ := nextMessage(t, e)
	require.IsType(t, &protocol.AwakeableEntryMessage{}, m)

	push(t, e, protocol.Encode(&protocol.CompletionMessage{EntryIndex: 1, Result: protocol.ValueResult([]byte("woken"))}))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.ValueResult([]byte("woken")), msgs[0].(*protocol.OutputEntryMessage).Result)

	invID, idx, err := ParseAwakeableID(gotID)
	require.NoError(t, err)
	assert.Equal(t, []byte("inv-test"), invID)
	assert.Equal(t, uint32(1), idx)
}

// Completions are applied by index, not arrival order.
func TestCompletions_OutOfOrder(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		d1, err := ops.Call("Peer", "A", []byte("a"))
		if err != nil {
			return nil, err
		}
		d2, err := ops.Call("Peer", "B", []byte("b"))
		if err != nil {
			return nil, err
		}
		r1, err := ops.Await(d1)
		if err != nil {
			return nil, err
		}
		r2, err := ops.Await(d2)
		if err != nil {
			return nil, err
		}
		return append(r1.Value, r2.Value...), nil
	})
	push(t, e, startFrame(1, nil), inputFrame(""))

	m, _ := nextMessage(t, e)
	require.IsType(t, &protocol.InvokeEntryMessage{}, m)
	m, _ = nextMessage(t, e)
	require.IsType(t, &protocol.InvokeEntryMessage{}, m)

	// Resolve the second call first.
	push(t, e,
		protocol.Encode(&protocol.CompletionMessage{EntryIndex: 2, Result: protocol.ValueResult([]byte("B"))}),
		protocol.Encode(&protocol.CompletionMessage{EntryIndex: 1, Result: protocol.ValueResult([]byte("A"))}),
	)
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("AB"), msgs[0].(*protocol.OutputEntryMessage).Result.Value)
}

// A call completed with a terminal failure surfaces it to handler code.
func TestCall_TerminalFailureSurfaces(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		d, err := ops.Call("Peer", "A", nil)
		if err != nil {
			return nil, err
		}
		r, err := ops.Await(d)
		if err != nil {
			return nil, err
		}
		if r.Kind == protocol.ResultFailure {
			return nil, errs.NewTerminalError(r.Failure.Code, "%s", r.Failure.Message)
		}
		return r.Value, nil
	})
	push(t, e, startFrame(1, nil), inputFrame(""))
	nextMessage(t, e)
	push(t, e, protocol.Encode(&protocol.CompletionMessage{EntryIndex: 1, Result: protocol.FailureResult(errs.CodeNotFound, "no peer")}))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	out := msgs[0].(*protocol.OutputEntryMessage)
	assert.Equal(t, protocol.FailureResult(errs.CodeNotFound, "no peer"), out.Result)
}

// Any: the first resolved child wins and the observed order is journalled.
func TestAny_JournalsResolutionOrder(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		d1, err := ops.Call("Peer", "A", nil)
		if err != nil {
			return nil, err
		}
		d2, err := ops.Call("Peer", "B", nil)
		if err != nil {
			return nil, err
		}
		any := ops.Any(d1, d2)
		r, err := ops.Await(any)
		if err != nil {
			return nil, err
		}
		return r.Value, nil
	})
	push(t, e, startFrame(1, nil), inputFrame(""))
	nextMessage(t, e)
	nextMessage(t, e)

	push(t, e, protocol.Encode(&protocol.CompletionMessage{EntryIndex: 2, Result: protocol.ValueResult([]byte("B"))}))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 2)
	comb := msgs[0].(*protocol.CombinatorEntryMessage)
	assert.Equal(t, []uint32{2}, comb.EntryIndexes)
	assert.Equal(t, []byte("B"), msgs[1].(*protocol.OutputEntryMessage).Result.Value)
}

// Replaying an any combinator elects the journalled winner even when the
// other child's completion also arrives.
func TestAny_ReplayElectsJournalledWinner(t *testing.T) {
	handler := func(ops *Engine, input []byte) ([]byte, error) {
		d1, err := ops.Call("Peer", "A", nil)
		if err != nil {
			return nil, err
		}
		d2, err := ops.Call("Peer", "B", nil)
		if err != nil {
			return nil, err
		}
		r, err := ops.Await(ops.Any(d1, d2))
		if err != nil {
			return nil, err
		}
		return r.Value, nil
	}
	e := newTestEngine(t, handler)
	push(t, e,
		startFrame(4, nil),
		inputFrame(""),
		protocol.Encode(&protocol.InvokeEntryMessage{ServiceName: "Peer", MethodName: "A"}),
		protocol.Encode(&protocol.InvokeEntryMessage{ServiceName: "Peer", MethodName: "B", Result: protocol.ValueResult([]byte("B"))}),
		protocol.Encode(&protocol.CombinatorEntryMessage{EntryIndexes: []uint32{2}}),
	)
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("B"), msgs[0].(*protocol.OutputEntryMessage).Result.Value)
}

// Suspension on a combinator lists every unresolved leaf.
func TestSuspension_ListsCombinatorLeaves(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		d1, err := ops.Call("Peer", "A", nil)
		if err != nil {
			return nil, err
		}
		d2, err := ops.Call("Peer", "B", nil)
		if err != nil {
			return nil, err
		}
		if _, err := ops.Await(ops.All(d1, d2)); err != nil {
			return nil, err
		}
		return nil, nil
	})
	push(t, e, startFrame(1, nil), inputFrame(""))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 3)
	susp := msgs[2].(*protocol.SuspensionMessage)
	assert.Equal(t, []uint32{1, 2}, susp.EntryIndexes)
}

// Eager reads of a locally written key never journal a GetState entry.
func TestEagerState_LocalWriteServedFromCache(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		if err := ops.SetState("k", []byte("v1")); err != nil {
			return nil, err
		}
		v, present, err := ops.GetState("k")
		if err != nil {
			return nil, err
		}
		if !present {
			return nil, errs.NewTerminalError(errs.CodeInternal, "expected k present")
		}
		if err := ops.ClearState("k"); err != nil {
			return nil, err
		}
		_, present, err = ops.GetState("k")
		if err != nil {
			return nil, err
		}
		if present {
			return nil, errs.NewTerminalError(errs.CodeInternal, "expected k absent")
		}
		return v, nil
	})
	push(t, e, startFrame(1, nil), inputFrame(""))
	e.CloseInput()

	msgs := drain(t, e)
	// SetState, ClearState, Output; no GetState entries.
	require.Len(t, msgs, 3)
	require.IsType(t, &protocol.SetStateEntryMessage{}, msgs[0])
	require.IsType(t, &protocol.ClearStateEntryMessage{}, msgs[1])
	assert.Equal(t, []byte("v1"), msgs[2].(*protocol.OutputEntryMessage).Result.Value)
}

// A cold get journals the entry and awaits the runtime's completion.
func TestEagerState_MissRoundTrips(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		v, _, err := ops.GetState("cold")
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	push(t, e, startFrame(1, nil), inputFrame(""))

	m, h := nextMessage(t, e)
	get := m.(*protocol.GetStateEntryMessage)
	assert.Equal(t, []byte("cold"), get.Key)
	assert.False(t, h.Done())

	push(t, e, protocol.Encode(&protocol.CompletionMessage{EntryIndex: 1, Result: protocol.ValueResult([]byte("warm"))}))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("warm"), msgs[0].(*protocol.OutputEntryMessage).Result.Value)
}

// Replaying the engine against its own journal emits nothing for the
// replayed prefix, then behaves identically.
func TestReplay_OwnJournalIsSilent(t *testing.T) {
	handler := func(ops *Engine, input []byte) ([]byte, error) {
		if err := ops.SetState("greeting", input); err != nil {
			return nil, err
		}
		d, err := ops.Sleep(time.Second)
		if err != nil {
			return nil, err
		}
		if _, err := ops.Await(d); err != nil {
			return nil, err
		}
		return input, nil
	}

	// First attempt: set + sleep + suspension.
	first := newTestEngine(t, handler)
	push(t, first, startFrame(1, nil), inputFrame("hi"))
	first.CloseInput()
	firstOut := drain(t, first)
	require.Len(t, firstOut, 3)
	sleepEntry := firstOut[1].(*protocol.SleepEntryMessage)

	// Re-invocation replays the emitted journal plus the elapsed sleep.
	second := newTestEngine(t, handler)
	sleepEntry.Result = protocol.EmptyResult()
	push(t, second,
		startFrame(3, nil),
		inputFrame("hi"),
		protocol.Encode(firstOut[0]),
		protocol.Encode(sleepEntry),
	)
	second.CloseInput()

	msgs := drain(t, second)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("hi"), msgs[0].(*protocol.OutputEntryMessage).Result.Value)
}

// A duplicated completion with a different payload is a protocol failure.
func TestCompletion_ConflictingDuplicateRejected(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		d, err := ops.Call("Peer", "A", nil)
		if err != nil {
			return nil, err
		}
		// Stay blocked so the second completion lands before output.
		d2, err := ops.Call("Peer", "B", nil)
		if err != nil {
			return nil, err
		}
		if _, err := ops.Await(d2); err != nil {
			return nil, err
		}
		r, err := ops.Await(d)
		if err != nil {
			return nil, err
		}
		return r.Value, nil
	})
	push(t, e, startFrame(1, nil), inputFrame(""))
	nextMessage(t, e)
	nextMessage(t, e)

	push(t, e, protocol.Encode(&protocol.CompletionMessage{EntryIndex: 1, Result: protocol.ValueResult([]byte("x"))}))
	err := e.PushInput(protocol.Encode(&protocol.CompletionMessage{EntryIndex: 1, Result: protocol.ValueResult([]byte("y"))}))
	require.Error(t, err)

	msgs := drain(t, e)
	require.NotEmpty(t, msgs)
	em := msgs[len(msgs)-1].(*protocol.ErrorMessage)
	assert.Equal(t, uint32(errs.CodeInternal), em.Code)
	assert.True(t, e.Closed())
}

// Messages split across arbitrary chunk boundaries reassemble.
func TestPushInput_ChunkedFrames(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		return input, nil
	})
	var stream []byte
	stream = append(stream, startFrame(1, nil)...)
	stream = append(stream, inputFrame("chunked")...)
	for _, b := range stream {
		require.NoError(t, e.PushInput([]byte{b}))
	}
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("chunked"), msgs[0].(*protocol.OutputEntryMessage).Result.Value)
}

// A stream that ends before delivering the input entry cannot start the
// handler; the engine must close with an error rather than hang.
func TestCloseInput_BeforeInputEntry(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		return input, nil
	})
	push(t, e, startFrame(1, nil))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	em := msgs[0].(*protocol.ErrorMessage)
	assert.Contains(t, em.Message, "input entry")
	assert.True(t, e.Closed())
}

// A stream that ends mid-frame is a fatal protocol error.
func TestCloseInput_TruncatedStream(t *testing.T) {
	e := newTestEngine(t, func(ops *Engine, input []byte) ([]byte, error) {
		return input, nil
	})
	frame := startFrame(1, nil)
	require.NoError(t, e.PushInput(frame[:len(frame)-2]))
	e.CloseInput()

	msgs := drain(t, e)
	require.Len(t, msgs, 1)
	em := msgs[0].(*protocol.ErrorMessage)
	assert.Contains(t, em.Message, "truncated")
	assert.True(t, e.Closed())
}
