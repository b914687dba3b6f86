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

// Package sdk is the surface handler code programs against: durable state,
// calls, timers, side effects, awakeables and combinators, all backed by the
// invocation engine's journal.
//
// A Context is bound to one invocation and must not be used concurrently;
// handler code runs on a single logical thread and suspends only at await
// points.
package sdk

import (
	"time"

	"durable-sdk/internal/engine"
	"durable-sdk/internal/futures"
	"durable-sdk/pkg/errs"
	"durable-sdk/pkg/protocol"
)

// Context exposes the durable operations of one invocation.
type Context struct {
	eng *engine.Engine
}

// newContext binds a context to an engine. Adapters construct it through
// Registry dispatch.
func newContext(eng *engine.Engine) *Context {
	return &Context{eng: eng}
}

// InvocationID returns the runtime-assigned id of this invocation.
func (c *Context) InvocationID() []byte {
	return c.eng.InvocationID()
}

// Get reads a state key. ok is false when the key is absent.
func (c *Context) Get(key string) (value []byte, ok bool, err error) {
	return c.eng.GetState(key)
}

// Set writes a state key.
func (c *Context) Set(key string, value []byte) error {
	return c.eng.SetState(key, value)
}

// Clear deletes a state key.
func (c *Context) Clear(key string) error {
	return c.eng.ClearState(key)
}

// Sleep returns a future that resolves once d elapsed on the runtime's
// clock. The invocation suspends rather than blocking a thread for the
// duration.
func (c *Context) Sleep(d time.Duration) (Future, error) {
	def, err := c.eng.Sleep(d)
	if err != nil {
		return Future{}, err
	}
	return Future{ctx: c, d: def}, nil
}

// Call invokes service/method with request bytes and returns the deferred
// response.
func (c *Context) Call(service, method string, request []byte) (Future, error) {
	def, err := c.eng.Call(service, method, request)
	if err != nil {
		return Future{}, err
	}
	return Future{ctx: c, d: def}, nil
}

// OneWayCall fires service/method without awaiting a response.
func (c *Context) OneWayCall(service, method string, request []byte) error {
	return c.eng.OneWayCall(service, method, request)
}

// DelayedCall schedules a one-way call after delay.
func (c *Context) DelayedCall(service, method string, request []byte, delay time.Duration) error {
	return c.eng.DelayedCall(service, method, request, delay)
}

// SideEffect runs fn once and freezes its value in the journal: retries of
// the invocation return the recorded value instead of re-executing fn. The
// action must not use the Context; doing so is a fatal violation.
func (c *Context) SideEffect(fn func() ([]byte, error)) ([]byte, error) {
	return c.eng.SideEffect(fn)
}

// Awakeable creates an externally addressable future. Hand the id to an
// external party; the future resolves when they complete it (see
// AwakeableHandle and pkg/ingress).
func (c *Context) Awakeable() (string, Future, error) {
	id, def, err := c.eng.Awakeable()
	if err != nil {
		return "", Future{}, err
	}
	return id, Future{ctx: c, d: def}, nil
}

// AwakeableHandle addresses a peer's awakeable by id.
func (c *Context) AwakeableHandle(id string) AwakeableHandle {
	return AwakeableHandle{ctx: c, id: id}
}

// All returns a future that resolves once every given future resolved, or
// fails with the first failure.
func (c *Context) All(fs ...Future) Future {
	return Future{ctx: c, d: c.eng.All(deferreds(fs)...)}
}

// Any returns a future resolving to the first of the given futures,
// deterministically across replays.
func (c *Context) Any(fs ...Future) AnyFuture {
	n := c.eng.Any(deferreds(fs)...).(*futures.Node)
	return AnyFuture{Future: Future{ctx: c, d: n}, node: n}
}

// AwakeableHandle resolves or rejects another invocation's awakeable.
type AwakeableHandle struct {
	ctx *Context
	id  string
}

// Resolve completes the awakeable with a value.
func (h AwakeableHandle) Resolve(value []byte) error {
	return h.ctx.eng.CompleteAwakeable(h.id, protocol.ValueResult(value))
}

// Reject completes the awakeable with a terminal failure.
func (h AwakeableHandle) Reject(code errs.Code, message string) error {
	return h.ctx.eng.CompleteAwakeable(h.id, protocol.FailureResult(code, message))
}

// Future is a deferred result handle. Await blocks the handler's logical
// thread; a terminal failure is returned as *errs.TerminalError.
type Future struct {
	ctx *Context
	d   futures.Deferred
}

// Await blocks until the result is known. An empty result yields nil bytes.
func (f Future) Await() ([]byte, error) {
	r, err := f.ctx.eng.Await(f.d)
	if err != nil {
		return nil, err
	}
	return resultValue(r)
}

// AnyFuture is the future of an any combinator; it additionally reports the
// winning child.
type AnyFuture struct {
	Future
	node *futures.Node
}

// AwaitWinner blocks until one child resolved and returns its position in
// the combinator's child list along with its value.
func (f AnyFuture) AwaitWinner() (int, []byte, error) {
	r, err := f.ctx.eng.Await(f.node)
	if err != nil {
		return -1, nil, err
	}
	v, err := resultValue(r)
	return f.node.Winner(), v, err
}

func deferreds(fs []Future) []futures.Deferred {
	ds := make([]futures.Deferred, len(fs))
	for i, f := range fs {
		ds[i] = f.d
	}
	return ds
}

func resultValue(r protocol.Result) ([]byte, error) {
	switch r.Kind {
	case protocol.ResultValue:
		return r.Value, nil
	case protocol.ResultEmpty:
		return nil, nil
	case protocol.ResultFailure:
		return nil, errs.NewTerminalError(r.Failure.Code, "%s", r.Failure.Message)
	}
	return nil, errs.NewProtocolViolation(errs.CodeInternal, "await returned an unset result")
}
