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

// Package engine drives one invocation: it consumes the runtime's message
// stream, replays the journal against handler code, emits entry messages for
// new operations and decides when to suspend.
//
// One engine instance serves exactly one invocation. Handler code runs on a
// single logical thread and suspends only at await points; the operation
// surface must not be used concurrently. Adapters may deliver inbound bytes
// from any thread; a single mutex serialises them with handler resumption.
package engine

import (
	"fmt"
	"sync"
	"time"

	"durable-sdk/internal/journal"
	"durable-sdk/pkg/errs"
	"durable-sdk/pkg/log"
	"durable-sdk/pkg/metrics"
	"durable-sdk/pkg/protocol"
)

// State is the invocation lifecycle position.
type State uint8

const (
	StateCreated State = iota
	StateReplaying
	StateProcessing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReplaying:
		return "replaying"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Handler is the invocation entry point: handler code receives the operation
// surface and the input payload, and returns the output payload or an error.
// A *errs.TerminalError return ends the invocation with a recorded failure;
// any other error is retryable and makes the runtime re-attempt the whole
// invocation.
type Handler func(ops *Engine, input []byte) ([]byte, error)

// Options configures one engine instance.
type Options struct {
	Service string
	Method  string
	Handler Handler
	Logger  *log.Logger
	// Clock supplies the current time for sleep wake-ups. Defaults to
	// time.Now; tests pin it.
	Clock func() time.Time
}

// stateVal is one eager-cache slot: a known value or a known absence.
type stateVal struct {
	present bool
	value   []byte
}

// Engine is the invocation state machine.
type Engine struct {
	mu   sync.Mutex
	cond *sync.Cond

	service string
	method  string
	handler Handler
	logger  *log.Logger
	clock   func() time.Time

	decoder protocol.Decoder

	state        State
	invocationID []byte
	journal      *journal.Journal

	// stateCache holds every key whose value (or absence) is known locally:
	// the eager snapshot from the StartMessage plus local writes. Keys not in
	// the map are unknown and require a runtime round trip. localTouched
	// marks keys written by this invocation; reads of those are served from
	// the cache without journalling anything, since the write entry already
	// pins the value for replay.
	stateCache   map[string]stateVal
	localTouched map[string]bool

	insideSideEffect bool
	inputClosed      bool
	started          bool

	out    [][]byte
	closed bool
}

// New creates an engine for one invocation. The stream is consumed via
// PushInput/CloseInput and produced via PollOutput.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger, _ = log.NewLogger(nil)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	e := &Engine{
		service: opts.Service,
		method:  opts.Method,
		handler: opts.Handler,
		logger:  logger,
		clock:   clock,
		state:   StateCreated,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// PushInput feeds inbound stream bytes. Complete messages are dispatched in
// order; a malformed stream fails the invocation. Safe to call from any
// thread.
func (e *Engine) PushInput(p []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.decoder.Feed(p)
	for {
		m, h, err := e.decoder.Next()
		if err != nil {
			e.fail(err)
			return err
		}
		if m == nil {
			return nil
		}
		if err := e.dispatch(m, h); err != nil {
			e.fail(err)
			return err
		}
		if e.closed {
			return nil
		}
	}
}

// CloseInput marks the inbound stream as drained. Blocked awaits past this
// point turn into a suspension. A stream that ended mid-frame fails the
// invocation instead.
func (e *Engine) CloseInput() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.decoder.Rest() > 0 {
		e.fail(protocol.ErrTruncated)
		return
	}
	if !e.started {
		// Without the input entry there is no handler thread to suspend or
		// finish; the engine would stay open forever.
		e.fail(errs.NewProtocolViolation(errs.CodeInternal, "stream ended before the input entry"))
		return
	}
	e.inputClosed = true
	e.cond.Broadcast()
}

// PollOutput returns the next outbound frame, blocking until one is
// available. It returns (nil, false) once the engine closed and every frame
// was drained.
func (e *Engine) PollOutput() ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.out) == 0 && !e.closed {
		e.cond.Wait()
	}
	if len(e.out) == 0 {
		return nil, false
	}
	b := e.out[0]
	e.out = e.out[1:]
	return b, true
}

// Closed reports whether the invocation ended (output, suspension or error).
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// InvocationID returns the runtime-assigned invocation identity, available
// once the StartMessage arrived.
func (e *Engine) InvocationID() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invocationID
}

// dispatch routes one inbound message. Called with mu held.
func (e *Engine) dispatch(m protocol.Message, h protocol.Header) error {
	if e.state == StateCreated {
		start, ok := m.(*protocol.StartMessage)
		if !ok {
			return errs.NewProtocolViolation(errs.CodeInternal, "expected StartMessage, got %s", m.Type())
		}
		return e.onStart(start)
	}

	switch msg := m.(type) {
	case *protocol.StartMessage:
		return errs.NewProtocolViolation(errs.CodeInternal, "duplicate StartMessage")
	case *protocol.CompletionMessage:
		_, err := e.journal.Complete(msg.EntryIndex, msg.Result)
		if err != nil {
			return err
		}
		e.cond.Broadcast()
		return nil
	case *protocol.EntryAckMessage:
		entry, ok := e.journal.Get(msg.EntryIndex)
		if !ok {
			return errs.NewProtocolViolation(errs.CodeInternal, "ack for unknown entry index %d", msg.EntryIndex)
		}
		entry.Acked = true
		e.cond.Broadcast()
		return nil
	case *protocol.EndMessage:
		if !e.started {
			return errs.NewProtocolViolation(errs.CodeInternal, "stream ended before the input entry")
		}
		e.inputClosed = true
		e.cond.Broadcast()
		return nil
	default:
		if !m.Type().IsEntry() {
			return errs.NewProtocolViolation(errs.CodeInternal, "unexpected inbound %s", m.Type())
		}
		entry, err := e.journal.AddReplayed(m)
		if err != nil {
			return err
		}
		metrics.JournalEntryTotal.WithLabelValues(m.Type().String(), "replayed").Inc()
		if entry.Index == 0 && !e.started {
			e.started = true
			go e.run()
		}
		e.cond.Broadcast()
		return nil
	}
}

// onStart initialises the journal and eager state cache.
func (e *Engine) onStart(start *protocol.StartMessage) error {
	e.invocationID = start.InvocationID
	e.journal = journal.New(start.KnownEntries)
	e.stateCache = make(map[string]stateVal, len(start.StateMap))
	e.localTouched = make(map[string]bool)
	for _, kv := range start.StateMap {
		e.stateCache[string(kv.Key)] = stateVal{present: true, value: kv.Value}
	}
	if e.journal.Replaying() {
		e.state = StateReplaying
	} else {
		e.state = StateProcessing
	}
	e.logger.Debug("invocation started",
		"invocation_id", fmt.Sprintf("%x", e.invocationID),
		"service", e.service,
		"method", e.method,
		"known_entries", start.KnownEntries)
	metrics.InvocationTotal.WithLabelValues(e.service, e.method).Inc()
	return nil
}

// run hosts the handler's logical thread.
func (e *Engine) run() {
	began := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.mu.Lock()
			e.fail(fmt.Errorf("handler panicked: %v", r))
			e.mu.Unlock()
		}
		metrics.InvocationDuration.WithLabelValues(e.service, e.method).Observe(time.Since(began).Seconds())
	}()

	input, err := e.consumeInput()
	if err != nil {
		e.mu.Lock()
		e.finishErr(err)
		e.mu.Unlock()
		return
	}

	out, err := e.handler(e, input)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if err != nil {
		e.finishErr(err)
		return
	}
	e.writeOutput(protocol.ValueResult(out))
}

// consumeInput performs the handler's implicit first operation: matching the
// Input entry at index 0 and extracting the invocation payload.
func (e *Engine) consumeInput() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.matchNext(&protocol.InputEntryMessage{})
	if err != nil {
		return nil, err
	}
	in, ok := entry.Message.(*protocol.InputEntryMessage)
	if !ok {
		return nil, errs.NewProtocolViolation(errs.CodeJournalMismatch, "entry 0 is %s, expected InputEntry", entry.Type())
	}
	return in.Value, nil
}

// finishErr ends the invocation for a handler error: terminal failures are
// journalled as the output, protocol violations and retryable errors close
// with an ErrorMessage. Called with mu held.
func (e *Engine) finishErr(err error) {
	if e.closed {
		return
	}
	if te, ok := errs.AsTerminal(err); ok {
		e.writeOutput(protocol.FailureResult(te.Code, te.Message))
		return
	}
	e.fail(err)
}

// writeOutput journals the Output entry and closes gracefully. Called with
// mu held.
func (e *Engine) writeOutput(r protocol.Result) {
	msg := &protocol.OutputEntryMessage{Result: r}
	if e.journal.Replaying() {
		if _, err := e.matchNext(msg); err != nil {
			if _, ok := errs.AsProtocolViolation(err); ok {
				e.fail(err)
			}
			return
		}
	} else {
		if _, err := e.journal.Append(msg); err != nil {
			e.fail(err)
			return
		}
		e.send(msg)
	}
	e.logger.Debug("invocation output written", "service", e.service, "method", e.method)
	metrics.InvocationFinished.WithLabelValues(e.service, e.method, "output").Inc()
	e.close()
}

// suspend emits a SuspensionMessage for the given awaited indices and
// closes. Called with mu held.
func (e *Engine) suspend(indices []uint32) {
	e.send(&protocol.SuspensionMessage{EntryIndexes: indices})
	e.logger.Debug("invocation suspended", "service", e.service, "method", e.method, "awaiting", indices)
	metrics.InvocationFinished.WithLabelValues(e.service, e.method, "suspension").Inc()
	metrics.SuspensionTotal.WithLabelValues(e.service, e.method).Inc()
	e.close()
}

// fail emits an ErrorMessage and closes. Called with mu held.
func (e *Engine) fail(err error) {
	if e.closed {
		return
	}
	code := errs.CodeUnknown
	if pv, ok := errs.AsProtocolViolation(err); ok {
		code = pv.Code
	}
	e.send(&protocol.ErrorMessage{Code: uint32(code), Message: err.Error()})
	e.logger.Error("invocation failed", "service", e.service, "method", e.method, "code", code.String(), "err", err)
	metrics.InvocationFinished.WithLabelValues(e.service, e.method, "error").Inc()
	e.close()
}

// close transitions to Closed and wakes every waiter: the adapter draining
// output and any handler await, which unwinds with ErrClosed.
func (e *Engine) close() {
	e.closed = true
	e.state = StateClosed
	e.cond.Broadcast()
}

// send frames a message onto the outbound queue. Called with mu held.
func (e *Engine) send(m protocol.Message) {
	e.out = append(e.out, protocol.Encode(m))
	if m.Type().IsEntry() {
		metrics.JournalEntryTotal.WithLabelValues(m.Type().String(), "emitted").Inc()
	}
	e.cond.Broadcast()
}

// matchNext blocks until the replayed entry for the next user operation
// arrived, then matches fresh against it. Mu held.
func (e *Engine) matchNext(fresh protocol.Message) (*journal.Entry, error) {
	for e.journal.NextUserIndex() >= e.journal.Size() {
		if e.closed {
			return nil, errs.ErrClosed
		}
		if e.inputClosed {
			return nil, errs.NewProtocolViolation(errs.CodeInternal,
				"stream ended before replayed entry %d of %d arrived", e.journal.NextUserIndex(), e.journal.Known())
		}
		e.cond.Wait()
	}
	return e.journal.MatchReplayed(fresh)
}

// applyEntry runs one user operation against the journal: matched during
// replay (no emission), appended and emitted during processing. Mu held.
func (e *Engine) applyEntry(fresh protocol.Message) (*journal.Entry, error) {
	if e.closed {
		return nil, errs.ErrClosed
	}
	if e.insideSideEffect {
		err := errs.NewProtocolViolation(errs.CodeInternal,
			"journalled operation %s inside a side effect", fresh.Type())
		e.fail(err)
		return nil, err
	}
	if e.journal.Replaying() {
		entry, err := e.matchNext(fresh)
		if err != nil {
			if _, ok := errs.AsProtocolViolation(err); ok {
				e.fail(err)
			}
			return nil, err
		}
		if !e.journal.Replaying() {
			e.state = StateProcessing
		}
		return entry, nil
	}
	entry, err := e.journal.Append(fresh)
	if err != nil {
		e.fail(err)
		return nil, err
	}
	e.send(fresh)
	return entry, nil
}
